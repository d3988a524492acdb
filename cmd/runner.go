package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/playsync/internal/formatter"
	"github.com/desertthunder/playsync/internal/repositories"
	"github.com/desertthunder/playsync/internal/resilience"
	"github.com/desertthunder/playsync/internal/services"
	"github.com/desertthunder/playsync/internal/shared"
	"github.com/desertthunder/playsync/internal/tasks"
	"github.com/desertthunder/playsync/internal/ui"
	"github.com/urfave/cli/v3"
	"golang.org/x/time/rate"
)

// errReported marks a failure whose user message and recovery were already printed.
var errReported = errors.New("failure reported")

const (
	spotifyReconnect = "playsync spotify auth"
	youtubeReconnect = "playsync ytmusic auth"
)

// Prompter asks the user to pick one of a recommendation's actions.
type Prompter func(rec *resilience.Record, rcm resilience.Recommendation) (resilience.Effect, bool, error)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config     *shared.Config
	configPath string
	spotify    services.Service
	youtube    services.Service
	logger     *log.Logger
	output     io.Writer

	registry *resilience.Registry
	sink     resilience.Sink
	guard    *resilience.Guard
	policy   resilience.Policy
	resolver *resilience.Resolver
	events   *repositories.ErrorEventRepository
	engine   *tasks.PlaylistEngine

	prompt  Prompter
	openURL func(string) error
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	Spotify    services.Service
	YouTube    services.Service
	Logger     *log.Logger
	Output     io.Writer

	Events  *repositories.ErrorEventRepository // Nil disables the persisted error log
	Engine  *resilience.Engine                 // Nil builds one over the service extensions
	Limiter *rate.Limiter
	Prompt  Prompter
	OpenURL func(string) error
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.ConfigPath == "" {
		opts.ConfigPath = "config.toml"
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Prompt == nil {
		opts.Prompt = func(rec *resilience.Record, rcm resilience.Recommendation) (resilience.Effect, bool, error) {
			return ui.Prompt(rec, rcm)
		}
	}
	if opts.OpenURL == nil {
		opts.OpenURL = shared.OpenBrowser
	}
	if opts.Limiter == nil {
		opts.Limiter = rate.NewLimiter(rate.Every(tasks.DefaultSearchInterval), 1)
	}

	engine := opts.Engine
	if engine == nil {
		engine = resilience.NewEngine(resilience.NewRegistry(services.Extensions()...))
	}

	sink := resilience.MultiSink{resilience.NewLogSink(opts.Logger)}
	if opts.Events != nil {
		sink = append(sink, opts.Events)
	}

	policy, err := opts.Config.Retry.Policy()
	if err != nil {
		opts.Logger.Warn("invalid retry settings, using defaults", "error", err)
		policy = resilience.DefaultPolicy()
	}

	resolver := resilience.NewResolver(opts.Config.Recovery.ResolverConfig(map[string]string{
		services.SpotifyIntegration: spotifyReconnect,
		services.YouTubeIntegration: youtubeReconnect,
	}))

	guard := resilience.NewGuard(engine, sink)

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		spotify:    opts.Spotify,
		youtube:    opts.YouTube,
		logger:     opts.Logger,
		output:     opts.Output,
		registry:   engine.Registry(),
		sink:       sink,
		guard:      guard,
		policy:     policy,
		resolver:   resolver,
		events:     opts.Events,
		engine: tasks.NewPlaylistEngine(opts.Spotify, opts.YouTube, guard,
			tasks.WithPolicy(policy), tasks.WithSearchLimiter(opts.Limiter)),
		prompt:  opts.Prompt,
		openURL: opts.OpenURL,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, spotifyCommand, ytmusicCommand, transferCommand, errorsCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// service returns the named integration or [shared.ErrServiceUnavailable].
func (r *Runner) service(name string) (services.Service, error) {
	switch name {
	case "spotify":
		if r.spotify == nil {
			return nil, fmt.Errorf("%w: Spotify service not initialized", shared.ErrServiceUnavailable)
		}
		return r.spotify, nil
	case "youtube", "ytmusic":
		if r.youtube == nil {
			return nil, fmt.Errorf("%w: YouTube Music service not initialized", shared.ErrServiceUnavailable)
		}
		return r.youtube, nil
	default:
		return nil, fmt.Errorf("%w: invalid service '%s' (must be 'spotify' or 'youtube')", shared.ErrInvalidArgument, name)
	}
}

// guarded runs op through the runner's guard with the configured retry policy.
func guarded[T any](ctx context.Context, r *Runner, label string, op resilience.Operation[T]) (T, error) {
	res := resilience.Wrap(ctx, r.guard, label, op, &r.policy)
	if !res.OK() {
		return res.Data, r.report(res.Err)
	}
	return res.Data, nil
}

// report prints rec's user message and the recommended recovery, then returns [errReported].
//
// The technical message is logged at debug level only.
func (r *Runner) report(rec *resilience.Record) error {
	r.logger.Debug("operation failed", "kind", rec.Kind().String(), "code", rec.Code(), "message", rec.Message())
	if _, err := r.output.Write(formatter.RenderRecord(rec, r.resolver.Resolve(rec), false)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return fmt.Errorf("%w: %s", errReported, rec.Kind())
}

// fail reports err if it is a record, otherwise returns it unchanged.
func (r *Runner) fail(err error) error {
	var rec *resilience.Record
	if errors.As(err, &rec) {
		return r.report(rec)
	}
	return err
}

// observe records a failure that did not pass through the guard, e.g. an OAuth callback.
func (r *Runner) observe(rec *resilience.Record, label string) {
	if r.sink != nil {
		r.sink.Observe(resilience.EventFrom(rec, label))
	}
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}
