package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/project-guardian/guardian/internal/ui"
)

var moduleInfoPairs []string

var recordModuleCmd = &cobra.Command{
	Use:   "module <name>",
	Short: "Merge fields into a module's entry in modules.json",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		k := mustFindKB()
		cfg := mustLoadConfig(k)

		info, err := parsePairs(moduleInfoPairs)
		if err != nil {
			fatal(err)
		}
		if len(info) == 0 {
			fatal(fmt.Errorf("at least one --info key=value is required"))
		}

		if err := k.UpdateModuleInfo(args[0], info, cfg.LockOptions()); err != nil {
			fatal(err)
		}
		fmt.Printf("%s Module info updated: %s\n", ui.Success("✓"), args[0])
	},
}

var archPairs []string

var recordArchCmd = &cobra.Command{
	Use:     "architecture",
	Aliases: []string{"arch"},
	Short:   "Merge fields into architecture.json",
	Run: func(cmd *cobra.Command, args []string) {
		k := mustFindKB()
		cfg := mustLoadConfig(k)

		data, err := parsePairs(archPairs)
		if err != nil {
			fatal(err)
		}
		if len(data) == 0 {
			fatal(fmt.Errorf("at least one --set key=value is required"))
		}

		if err := k.UpdateArchitecture(data, cfg.LockOptions()); err != nil {
			fatal(err)
		}
		fmt.Printf("%s Architecture updated\n", ui.Success("✓"))
	},
}

var editPairs []string

var editCmd = &cobra.Command{
	Use:     "edit <id>",
	GroupID: "kb",
	Short:   "Update fields of an existing record",
	Long: `Update fields of a recorded bug, requirement, or decision in place.
The record kind is inferred from the id prefix. Example:

  pg edit BUG-20260314093000-ab12 --set status=closed --set severity=high`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		k := mustFindKB()
		cfg := mustLoadConfig(k)

		fields, err := parsePairs(editPairs)
		if err != nil {
			fatal(err)
		}
		if len(fields) == 0 {
			fatal(fmt.Errorf("at least one --set key=value is required"))
		}

		rec, err := k.UpdateRecord(args[0], fields, cfg.LockOptions())
		if err != nil {
			fatal(err)
		}
		fmt.Printf("%s Updated %s - %s\n", ui.Success("✓"), ui.ID(rec.RecordID()), rec.RecordTitle())
	},
}

// parsePairs turns repeated key=value flags into a field map. Comma-separated
// values become string slices so list fields like tags can be set directly.
func parsePairs(pairs []string) (map[string]any, error) {
	fields := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("expected key=value, got %q", pair)
		}
		if strings.Contains(value, ",") {
			var items []string
			for _, item := range strings.Split(value, ",") {
				if item = strings.TrimSpace(item); item != "" {
					items = append(items, item)
				}
			}
			fields[key] = items
			continue
		}
		fields[key] = value
	}
	return fields, nil
}

func init() {
	recordModuleCmd.Flags().StringArrayVar(&moduleInfoPairs, "info", nil, "key=value to merge (repeatable)")
	recordArchCmd.Flags().StringArrayVar(&archPairs, "set", nil, "key=value to merge (repeatable)")
	editCmd.Flags().StringArrayVar(&editPairs, "set", nil, "key=value to set (repeatable)")

	recordCmd.AddCommand(recordModuleCmd)
	recordCmd.AddCommand(recordArchCmd)
	rootCmd.AddCommand(editCmd)
}
