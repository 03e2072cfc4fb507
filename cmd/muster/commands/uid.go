package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/dyluth/muster/internal/printer"
	"github.com/dyluth/muster/pkg/uid"
	"github.com/spf13/cobra"
)

var uidParams string

var uidCmd = &cobra.Command{
	Use:   "uid",
	Short: "Compute and check resource UIDs",
	Long: `Compute and check resource UIDs.

A UID is the kind tag followed by the kind's identity fields in their fixed
order, joined by ":". Parameterised kinds append an MD5 digest of their
canonical parameters.

Examples:
  muster uid compute pack examples
  muster uid compute trigger examples my-trigger --params '{"url": "https://x"}'
  muster uid check sensor_type sensor_type:examples:SampleSensor
  muster uid kinds`,
}

var uidComputeCmd = &cobra.Command{
	Use:   "compute KIND [VALUE...]",
	Short: "Print the UID for identity field values given in field order",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runUIDCompute,
}

var uidCheckCmd = &cobra.Command{
	Use:   "check KIND UID",
	Short: "Check that a UID has the segment layout of its kind",
	Args:  cobra.ExactArgs(2),
	RunE:  runUIDCheck,
}

var uidKindsCmd = &cobra.Command{
	Use:   "kinds",
	Short: "List resource kinds and their identity fields",
	Args:  cobra.NoArgs,
	RunE:  runUIDKinds,
}

func init() {
	uidComputeCmd.Flags().StringVar(&uidParams, "params", "", "Parameters as a JSON object (parameterised kinds only)")

	uidCmd.AddCommand(uidComputeCmd, uidCheckCmd, uidKindsCmd)
	rootCmd.AddCommand(uidCmd)
}

func runUIDCompute(cmd *cobra.Command, args []string) error {
	kind := uid.Kind(args[0])
	spec, err := uid.Lookup(kind)
	if err != nil {
		return unknownKindError(kind)
	}

	values := args[1:]
	if len(values) > len(spec.Fields) {
		return printer.Error(
			"too many values",
			fmt.Sprintf("Kind %s has %d identity fields (%s), got %d values.",
				kind, len(spec.Fields), strings.Join(spec.Fields, ", "), len(values)),
			nil,
		)
	}

	fields := make(map[string]string, len(values))
	for i, v := range values {
		fields[spec.Fields[i]] = v
	}

	var params map[string]any
	if uidParams != "" {
		if !spec.Parameterized {
			return printer.Error(
				"parameters not allowed",
				fmt.Sprintf("Kind %s is not parameterised.", kind),
				nil,
			)
		}
		dec := json.NewDecoder(bytes.NewReader([]byte(uidParams)))
		dec.UseNumber()
		if err := dec.Decode(&params); err != nil {
			return printer.Error("invalid --params", err.Error(), []string{`Pass a JSON object, e.g. --params '{"url": "https://x"}'`})
		}
	}

	id, err := uid.Compute(kind, fields, params)
	if err != nil {
		return printer.Error("cannot compute UID", err.Error(), nil)
	}

	printer.Info("%s\n", id)
	return nil
}

func runUIDCheck(cmd *cobra.Command, args []string) error {
	kind := uid.Kind(args[0])
	spec, err := uid.Lookup(kind)
	if err != nil {
		return unknownKindError(kind)
	}

	if !uid.HasValidUID(kind, args[1]) {
		return printer.Error(
			"invalid UID",
			fmt.Sprintf("%q does not match the %s layout (%d segments, prefix %q).",
				args[1], kind, spec.Segments(), string(kind)+uid.Separator),
			[]string{fmt.Sprintf("Recompute it:\n  muster uid compute %s %s", kind, strings.Join(spec.Fields, " "))},
		)
	}

	printer.Success("%s is a valid %s UID\n", args[1], kind)
	return nil
}

func runUIDKinds(cmd *cobra.Command, args []string) error {
	kinds := make([]string, 0, len(uid.Kinds))
	for k := range uid.Kinds {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)

	for _, k := range kinds {
		spec := uid.Kinds[uid.Kind(k)]
		fields := strings.Join(spec.Fields, ", ")
		if spec.Parameterized {
			fields += ", <parameters digest>"
		}
		printer.Info("%-18s %s\n", k, fields)
	}
	return nil
}

func unknownKindError(kind uid.Kind) error {
	return printer.Error(
		fmt.Sprintf("unknown resource kind '%s'", kind),
		"The kind is not registered.",
		[]string{"List kinds:\n  muster uid kinds"},
	)
}
