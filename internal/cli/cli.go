package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/vk/rolebinder/internal/app"
	"github.com/vk/rolebinder/internal/typeid"
	"github.com/vk/rolebinder/modules/props"
)

// Exit codes returned through ExitError.
const (
	ExitRuntime  = 1
	ExitUsage    = 2
	ExitNotFound = 3
)

// EnvPrefix prefixes environment variables that override configuration.
const EnvPrefix = "ROLEBINDER"

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

func usageError(err error) error {
	return &ExitError{Code: ExitUsage, Message: err.Error()}
}

// Execute runs the command line with args, writing command output to outW and
// logs to errW. Every failure is returned as an *ExitError.
func Execute(ctx context.Context, args []string, outW, errW io.Writer) error {
	root := NewRootCommand(outW, errW)
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return nil
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr
	}
	return &ExitError{Code: ExitRuntime, Message: err.Error()}
}

// state is shared by the commands of one invocation.
type state struct {
	v       *viper.Viper
	cfgFile string
	cfg     *app.Config
	errW    io.Writer
}

// NewRootCommand builds the rolebinder command tree.
func NewRootCommand(outW, errW io.Writer) *cobra.Command {
	st := &state{v: viper.New(), errW: errW}

	root := &cobra.Command{
		Use:   "rolebinder",
		Short: "Resolve role adapters from module manifests",
		Long: `rolebinder finds the adapter registered for a role and a type. Adapters are
declared by modules: compiled-in modules, manifest files under the modules
path, explicit references and manifests discovered next to the executable.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: st.load,
		// Unknown subcommands arrive here as positional arguments.
		Args: func(cmd *cobra.Command, args []string) error {
			if err := cobra.NoArgs(cmd, args); err != nil {
				return usageError(err)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error { return cmd.Help() },
	}
	root.SetOut(outW)
	root.SetErr(errW)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error { return usageError(err) })

	flags := root.PersistentFlags()
	flags.StringVarP(&st.cfgFile, "config", "c", "", "config file (default: ./rolebinder.yaml)")
	flags.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	flags.String("log-format", "text", "Log output format. Options: 'text' or 'json'.")
	flags.String("modules-path", "", "Directory searched recursively for module manifests, loaded on demand.")
	flags.String("probe-dir", "", "Directory probed for candidate modules (default: the executable's directory).")
	flags.StringSlice("probe-pattern", nil, "File name patterns the probe matches (default: *.module.hcl, *.module.yaml, *.module.yml).")
	flags.Bool("no-probe", false, "Disable probing for candidate modules.")
	flags.StringSlice("reference", nil, "Manifest file loaded eagerly at startup. Repeatable.")
	flags.Bool("trace", false, "Enable tracing of resolutions.")
	flags.String("trace-exporter", "stdout", "Trace exporter. Options: 'none', 'stdout', 'file'.")
	flags.String("trace-file", "", "Output file for the 'file' trace exporter.")

	st.bind(flags, map[string]string{
		"log_level":         "log-level",
		"log_format":        "log-format",
		"modules_path":      "modules-path",
		"probe_dir":         "probe-dir",
		"probe_patterns":    "probe-pattern",
		"disable_probe":     "no-probe",
		"references":        "reference",
		"tracing.enabled":   "trace",
		"tracing.exporter":  "trace-exporter",
		"tracing.file_path": "trace-file",
	})

	root.AddCommand(
		st.resolveCommand(),
		st.listCommand(),
		st.probeCommand(),
		st.serveCommand(),
		st.streamCommand(),
	)
	return root
}

func (st *state) bind(flags *pflag.FlagSet, keys map[string]string) {
	for key, name := range keys {
		_ = st.v.BindPFlag(key, flags.Lookup(name))
	}
}

// load layers defaults, the config file, the environment and flags into
// st.cfg.
func (st *state) load(cmd *cobra.Command, _ []string) error {
	v := st.v
	defaults := app.DefaultConfig()
	v.SetDefault("log_level", defaults.LogLevel)
	v.SetDefault("log_format", defaults.LogFormat)
	v.SetDefault("modules_path", defaults.ModulesPath)
	v.SetDefault("probe_dir", defaults.ProbeDir)
	v.SetDefault("probe_patterns", defaults.ProbePatterns)
	v.SetDefault("disable_probe", defaults.DisableProbe)
	v.SetDefault("references", defaults.References)
	v.SetDefault("server_port", defaults.ServerPort)
	v.SetDefault("tracing.enabled", defaults.Tracing.Enabled)
	v.SetDefault("tracing.exporter", defaults.Tracing.Exporter)
	v.SetDefault("tracing.file_path", defaults.Tracing.FilePath)
	v.SetDefault("tracing.sample_rate", defaults.Tracing.SampleRate)
	v.SetDefault("tracing.service_name", defaults.Tracing.ServiceName)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if st.cfgFile != "" {
		v.SetConfigFile(st.cfgFile)
	} else {
		v.SetConfigName("rolebinder")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if st.cfgFile != "" || !errors.As(err, &notFound) {
			return usageError(fmt.Errorf("failed to read config: %w", err))
		}
	}

	var raw app.Config
	if err := v.Unmarshal(&raw); err != nil {
		return usageError(fmt.Errorf("failed to decode config: %w", err))
	}
	raw.Tracing.Writer = st.errW

	cfg, err := app.NewConfig(raw)
	if err != nil {
		return usageError(err)
	}
	st.cfg = cfg
	return nil
}

// start builds and starts the application.
func (st *state) start() (*app.App, error) {
	a, err := app.NewApp(st.errW, st.cfg)
	if err != nil {
		return nil, err
	}
	if err := a.Start(); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(n)(cmd, args); err != nil {
			return usageError(err)
		}
		return nil
	}
}

func outputFlag(cmd *cobra.Command) *string {
	return cmd.Flags().StringP("output", "o", "text", "Output format. Options: 'text' or 'json'.")
}

func checkOutput(output string) error {
	switch output {
	case "text", "json":
		return nil
	default:
		return usageError(fmt.Errorf("invalid output %q: must be 'text' or 'json'", output))
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (st *state) resolveCommand() *cobra.Command {
	var fallback bool
	cmd := &cobra.Command{
		Use:   "resolve ROLE TYPE",
		Short: "Find the adapter for a role and a type",
		Args:  exactArgs(2),
	}
	cmd.Flags().BoolVar(&fallback, "fallback", false, "Fall back to the null substitute of TYPE when nothing is found.")
	output := outputFlag(cmd)

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		if err := checkOutput(*output); err != nil {
			return err
		}
		a, err := st.start()
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.Resolve(a.Context(), args[0], args[1], fallback)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if *output == "json" {
			err = writeJSON(out, app.NewResolutionView(res))
		} else {
			_, err = fmt.Fprintln(out, res.String())
		}
		if err != nil {
			return err
		}
		if !res.Found() {
			return &ExitError{Code: ExitNotFound, Message: fmt.Sprintf("no %s adapter found for %s", res.Role, res.Adaptee)}
		}
		return nil
	}
	return cmd
}

func (st *state) listCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Scan every known module and list its adapter definitions",
		Args:  exactArgs(0),
	}
	output := outputFlag(cmd)

	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		if err := checkOutput(*output); err != nil {
			return err
		}
		a, err := st.start()
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.ScanAll(); err != nil {
			return err
		}
		defs := a.Definitions()
		out := cmd.OutOrStdout()

		if *output == "json" {
			type row struct {
				Role    string            `json:"role"`
				Adaptee string            `json:"adaptee"`
				Adapter string            `json:"adapter"`
				Module  string            `json:"module"`
				Origin  string            `json:"origin,omitempty"`
				Options map[string]string `json:"options,omitempty"`
			}
			rows := make([]row, 0, len(defs))
			for _, d := range defs {
				rows = append(rows, row{string(d.Role), string(d.Adaptee), string(d.Adapter), d.Module.Name(), d.Origin, d.Options})
			}
			return writeJSON(out, rows)
		}

		tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "ROLE\tADAPTEE\tADAPTER\tMODULE\tORIGIN")
		for _, d := range defs {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", d.Role, d.Adaptee, d.Adapter, d.Module.Name(), d.Origin)
		}
		return tw.Flush()
	}
	return cmd
}

func (st *state) probeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "List the candidate modules found by the probe",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := app.NewApp(st.errW, st.cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tLOCATION")
			for ref := range a.Candidates() {
				fmt.Fprintf(tw, "%s\t%s\n", ref.Name(), ref.Location())
			}
			return tw.Flush()
		},
	}
}

func (st *state) serveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve resolutions over HTTP",
		Args:  exactArgs(0),
	}
	cmd.Flags().IntP("port", "p", app.DefaultConfig().ServerPort, "Port for the HTTP server. 0 picks a free port.")
	_ = st.v.BindPFlag("server_port", cmd.Flags().Lookup("port"))

	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		a, err := st.start()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return a.Serve(ctx, func(addr string) {
			fmt.Fprintf(cmd.OutOrStdout(), "Listening on %s\n", addr)
		})
	}
	return cmd
}

func (st *state) streamCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stream TYPE [KEY=VALUE...]",
		Short: "Activate a property bag of TYPE, fill it and stream it",
		Args: func(cmd *cobra.Command, args []string) error {
			if err := cobra.MinimumNArgs(1)(cmd, args); err != nil {
				return usageError(err)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := typeid.Parse(args[0])
			if err != nil {
				return usageError(err)
			}
			values := make([][2]string, 0, len(args)-1)
			for _, arg := range args[1:] {
				k, v, ok := strings.Cut(arg, "=")
				if !ok || k == "" {
					return usageError(fmt.Errorf("invalid entry %q: expected KEY=VALUE", arg))
				}
				values = append(values, [2]string{k, v})
			}

			a, err := st.start()
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := a.Context()
			v, err := a.Session().Activate(ctx, id)
			if err != nil {
				return err
			}
			bag, ok := v.(props.Bag)
			if !ok {
				return fmt.Errorf("activated %s is %T, not a property bag", id, v)
			}
			for _, kv := range values {
				bag.Set(kv[0], kv[1])
			}
			return a.Session().Stream(ctx, id, bag, cmd.OutOrStdout())
		},
	}
}
