package app

import (
	"github.com/vk/rolebinder/internal/module"
	"github.com/vk/rolebinder/modules/activation"
	"github.com/vk/rolebinder/modules/nullobj"
	"github.com/vk/rolebinder/modules/props"
	"github.com/vk/rolebinder/modules/stream"
)

// coreModules is the definitive list of all modules that are compiled into
// the rolebinder binary. Modules listed in deferredCoreModules are reachable
// through references declared by other modules and are loaded on first need.
var coreModules = []module.Static{
	&activation.Module{},
	&props.Module{},
	&nullobj.Module{},
	&stream.Module{},
}

var deferredCoreModules = map[string]bool{
	"stream": true,
}
