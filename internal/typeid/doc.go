/*
Package typeid provides the type identities used as registry keys and the
Catalog that binds those identities to compiled Go types.

An identity is a dot-separated sequence of Go-style identifiers, e.g.
`props.MapBag` or `store.v2.IStore`. The last segment is the type name and
the leading segments form its package prefix. Manifests refer to types only
by identity; the Catalog is where in-process modules attach the reflect.Type,
a constructor, and an optional concrete-class binding for abstract types.
*/
package typeid
