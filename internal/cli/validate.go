package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// ValidationResult is the JSON data of a validate run.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Device string            `json:"device,omitempty"`
	ID     string            `json:"id,omitempty"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>",
		Short: "Validate a profile document without importing it",
		Long: `Validate a YAML or JSON profile document.

The document is checked against the profile schema, then decoded, and every
instance context must match the slot holding it. Nothing is written to the
store.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			f.VerboseLog("Validating %s", args[0])
			return reportValidation(f, LoadProfileFile(args[0]))
		},
	}
}

func reportValidation(f *OutputFormatter, res *LoadResult) error {
	if len(res.Errors) == 0 {
		p := res.Profile
		if f.isJSON() {
			return f.Success(ValidationResult{Valid: true, Device: p.Device, ID: p.ID})
		}
		fmt.Fprintf(f.Writer, "✓ %s: profile %s/%s valid\n", res.Path, p.Device, p.ID)
		return nil
	}

	first := res.Errors[0]
	code := ExitFailure
	if first.Code == ErrCodeNotFound {
		code = ExitCommandError
	}
	failed := NewExitError(code, fmt.Sprintf("%s: %d validation error(s)", res.Path, len(res.Errors)))

	if f.isJSON() {
		if err := f.emit(CLIResponse{
			Status: "error",
			Data:   ValidationResult{Valid: false, Errors: res.Errors},
			Error:  &CLIError{Code: first.Code, Message: first.Message},
		}); err != nil {
			return err
		}
		return failed
	}

	var b strings.Builder
	fmt.Fprintf(&b, "✗ %s: validation failed\n", res.Path)
	for _, e := range res.Errors {
		loc := ""
		if e.Line > 0 {
			loc = fmt.Sprintf(" (line %d)", e.Line)
		}
		if e.Field != "" {
			fmt.Fprintf(&b, "  %s%s %s: %s\n", e.Code, loc, e.Field, e.Message)
		} else {
			fmt.Fprintf(&b, "  %s%s %s\n", e.Code, loc, e.Message)
		}
	}
	fmt.Fprint(f.Writer, b.String())
	return failed
}
