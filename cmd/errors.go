package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/desertthunder/playsync/internal/formatter"
	"github.com/desertthunder/playsync/internal/resilience"
	"github.com/desertthunder/playsync/internal/shared"
	"github.com/urfave/cli/v3"
)

// ErrorsClassify normalizes a failure described by flags and prints the record with its recommendation.
//
// With --service the failure is shaped like a decoded provider response, so that integration's sub-codes apply.
func (r *Runner) ErrorsClassify(ctx context.Context, cmd *cli.Command) error {
	raw, err := syntheticFailure(cmd)
	if err != nil {
		return err
	}

	rec := r.registry.Normalize(raw)
	rcm := r.resolver.Resolve(rec)

	if cmd.Bool("json") {
		return r.writeJSON(formatter.RecordReport{Record: rec, Recommendation: rcm}, true)
	}

	_, err = r.output.Write(formatter.RenderRecord(rec, rcm, true))
	return err
}

func syntheticFailure(cmd *cli.Command) (map[string]any, error) {
	raw := map[string]any{}
	if cmd.IsSet("status") {
		raw["status"] = int(cmd.Int("status"))
	}
	if code := cmd.String("code"); code != "" {
		raw["code"] = code
	}
	if msg := cmd.String("message"); msg != "" {
		raw["message"] = msg
	}
	if service := cmd.String("service"); service != "" {
		raw["service"] = service
	}

	if pairs := cmd.StringSlice("field"); len(pairs) > 0 {
		fields := make(map[string]string, len(pairs))
		for _, pair := range pairs {
			k, v, ok := strings.Cut(pair, "=")
			if !ok || strings.TrimSpace(k) == "" {
				return nil, fmt.Errorf("%w: --field %q must be key=value", shared.ErrInvalidArgument, pair)
			}
			fields[strings.TrimSpace(k)] = strings.TrimSpace(v)
		}
		raw["fields"] = fields
	}

	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: at least one of --status, --code or --message is required", shared.ErrMissingArgument)
	}
	return raw, nil
}

// ErrorsLog lists persisted failures.
func (r *Runner) ErrorsLog(ctx context.Context, cmd *cli.Command) error {
	if r.events == nil {
		return fmt.Errorf("%w: error log unavailable, run 'playsync setup' first", shared.ErrServiceUnavailable)
	}

	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	rows, err := r.events.List(map[string]any{
		"limit": int(cmd.Int("limit")),
		"kind":  strings.ToUpper(cmd.String("kind")),
	})
	if err != nil {
		return err
	}

	events := make([]resilience.Event, 0, len(rows))
	for _, row := range rows {
		events = append(events, row.Event())
	}

	switch format {
	case formatter.FormatJSON:
		return r.writeJSON(events, true)
	case formatter.FormatCSV:
		data, err := formatter.EventsToCSV(events)
		if err != nil {
			return err
		}
		_, err = r.output.Write(data)
		return err
	default:
		if len(events) == 0 {
			return r.writePlain("No failures recorded.\n")
		}
		_, err := r.output.Write(formatter.EventsToText(events))
		return err
	}
}

// ErrorsRecover replays the most recent failure through the recovery prompt and carries out the chosen effect.
func (r *Runner) ErrorsRecover(ctx context.Context, cmd *cli.Command) error {
	if r.events == nil {
		return fmt.Errorf("%w: error log unavailable, run 'playsync setup' first", shared.ErrServiceUnavailable)
	}

	latest, err := r.events.Latest()
	if errors.Is(err, shared.ErrNoEvents) {
		return r.writePlain("No failures recorded.\n")
	}
	if err != nil {
		return err
	}

	rec := latest.Record()
	rcm := r.resolver.Resolve(rec)

	var effect resilience.Effect
	if cmd.Bool("primary") {
		effect = rcm.Primary.Effect
		r.writePlain("%s\n→ %s\n", rec.UserMessage(), rcm.Primary.Label)
	} else {
		var chosen bool
		effect, chosen, err = r.prompt(rec, rcm)
		if err != nil {
			return fmt.Errorf("recovery prompt failed: %w", err)
		}
		if !chosen {
			return r.writePlain("Dismissed.\n")
		}
	}

	return r.apply(ctx, effect, latest.Context(), cmd.String("config"))
}
