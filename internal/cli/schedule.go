package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/alecycle/internal/trigger"
)

// ScheduleOptions holds flags for the schedule command.
type ScheduleOptions struct {
	*RootOptions
	Count    int
	Timezone string

	Now func() time.Time
}

// ScheduleResult is the JSON payload of the schedule command.
type ScheduleResult struct {
	URI    string      `json:"uri"`
	Period int64       `json:"period_ms"`
	Offset int64       `json:"offset_ms"` // UTC-normalized
	Next   []time.Time `json:"next"`
}

// NewScheduleCommand creates the schedule command.
func NewScheduleCommand(rootOpts *RootOptions) *cobra.Command {
	return newScheduleCommand(rootOpts, time.Now)
}

func newScheduleCommand(rootOpts *RootOptions, now func() time.Time) *cobra.Command {
	opts := &ScheduleOptions{RootOptions: rootOpts, Now: now}

	cmd := &cobra.Command{
		Use:   "schedule <rtc-trigger-uri>",
		Short: "Print the next fire times of an RTC trigger",
		Long: `Print the next fire times of an RTC trigger URI of the form
urn:epcglobal:ale:trigger:rtc:<period>.<offset>[.<timezone>].

Without a timezone in the URI, the offset is taken in --timezone
(default: host local time).

Example:
  alecycle schedule urn:epcglobal:ale:trigger:rtc:3600000.0 -n 3
  alecycle schedule urn:epcglobal:ale:trigger:rtc:86400000.0 --timezone Europe/Berlin`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSchedule(opts, args[0], cmd)
		},
	}

	cmd.Flags().IntVarP(&opts.Count, "count", "n", 5, "number of fire times to print")
	cmd.Flags().StringVar(&opts.Timezone, "timezone", "", "IANA timezone for URIs without one")

	return cmd
}

func runSchedule(opts *ScheduleOptions, uri string, cmd *cobra.Command) error {
	out := newOutput(opts.RootOptions, cmd)

	if opts.Count < 1 {
		return NewExitError(ExitCommandError, "--count must be at least 1")
	}
	loc := time.Local
	if opts.Timezone != "" {
		var err error
		if loc, err = time.LoadLocation(opts.Timezone); err != nil {
			return WrapExitError(ExitCommandError, "invalid timezone", err)
		}
	}

	now := opts.Now().In(loc)
	spec, err := trigger.Parse(uri, now)
	if err != nil {
		out.Problem(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid trigger URI", err)
	}
	if spec.Kind != trigger.KindRTC {
		out.Problem(ErrCodeGeneric, "not an RTC trigger", uri)
		return NewExitError(ExitCommandError, "schedule only applies to RTC triggers")
	}
	out.Debugf("period=%dms offset=%dms (UTC)", spec.Period, spec.Offset)

	result := ScheduleResult{URI: uri, Period: spec.Period, Offset: spec.Offset}
	at := now
	for range opts.Count {
		at = trigger.NextFire(spec, at)
		result.Next = append(result.Next, at)
	}

	return out.Result(result)
}

func (r ScheduleResult) writeText(w io.Writer) {
	for _, t := range r.Next {
		fmt.Fprintln(w, t.Format(time.RFC3339))
	}
}
