package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/davparache/auditory-updated/inventory"
)

var getCmd = &cobra.Command{
	Use:   "get [PART]",
	Short: "Print one part, or the whole inventory",
	Long:  `Reads from the local cache; no backend round trip.`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runGet,
}

var setCmd = &cobra.Command{
	Use:   "set PART",
	Short: "Write one part entry and sync it",
	Args:  cobra.ExactArgs(1),
	RunE:  runSet,
}

var rmCmd = &cobra.Command{
	Use:   "rm PART",
	Short: "Remove one part entry and sync the removal",
	Args:  cobra.ExactArgs(1),
	RunE:  runRm,
}

var loadCmd = &cobra.Command{
	Use:   "load FILE",
	Short: "Replace the inventory with a bulk JSON export",
	Long: `Reads a full inventory map (JSON, keyed by part number) and replaces
the tracked inventory wholesale. Parts absent from the file are
dropped.`,
	Args: cobra.ExactArgs(1),
	RunE: runLoad,
}

var zonesCmd = &cobra.Command{
	Use:   "zones",
	Short: "Print the inventory grouped into audit zones",
	Args:  cobra.NoArgs,
	RunE:  runZones,
}

var (
	setBin       string
	setQty       int
	setBackorder int
	setDesc      string
)

func init() {
	setCmd.Flags().StringVar(&setBin, "bin", "", "Bin location code")
	setCmd.Flags().IntVar(&setQty, "qty", 0, "Counted quantity")
	setCmd.Flags().IntVar(&setBackorder, "backorder", 0, "Open backorder quantity")
	setCmd.Flags().StringVar(&setDesc, "desc", "", "Part description")
}

func runGet(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	if len(args) == 1 {
		item, ok := a.tracker.Item(args[0])
		if !ok {
			return fmt.Errorf("part %q not tracked", inventory.NormalizePart(args[0]))
		}
		printItem(item)
		return nil
	}

	items := a.tracker.Items()
	if len(items) == 0 {
		fmt.Println("inventory is empty")
		return nil
	}
	for _, part := range sortedParts(items) {
		printItem(items[part])
	}
	return nil
}

func runSet(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	a.connectSaved(cmd.Context())

	item, err := a.tracker.Upsert(inventory.Item{
		Part:        args[0],
		Bin:         setBin,
		Qty:         setQty,
		Backorder:   setBackorder,
		Description: setDesc,
	})
	if err != nil {
		return err
	}

	printItem(item)
	return nil
}

func runRm(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	a.connectSaved(cmd.Context())

	if err := a.tracker.Remove(args[0]); err != nil {
		return err
	}

	fmt.Printf("%s removed\n", inventory.NormalizePart(args[0]))
	return nil
}

func runLoad(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	m, err := inventory.Decode(data)
	if err != nil {
		return err
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	a.connectSaved(cmd.Context())

	if err := a.tracker.BulkReplace(m); err != nil {
		return err
	}

	fmt.Printf("loaded %d parts\n", len(m))
	return nil
}

func runZones(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	zones := a.tracker.Zones()
	if len(zones) == 0 {
		fmt.Println("inventory is empty")
		return nil
	}

	groups := make([]string, 0, len(zones))
	for g := range zones {
		groups = append(groups, g)
	}
	sort.Strings(groups)

	for _, g := range groups {
		grp := zones[g]
		fmt.Printf("%s (%d items)\n", g, grp.TotalItems)

		subs := make([]string, 0, len(grp.Subgroups))
		for sg := range grp.Subgroups {
			subs = append(subs, sg)
		}
		sort.Strings(subs)

		for _, sg := range subs {
			bins := make([]string, 0, len(grp.Subgroups[sg]))
			for b := range grp.Subgroups[sg] {
				bins = append(bins, orDash(b))
			}
			sort.Strings(bins)
			fmt.Printf("  %s: %s\n", sg, strings.Join(bins, " "))
		}
	}
	return nil
}

func printItem(it inventory.Item) {
	line := fmt.Sprintf("%-14s bin %-8s qty %4d", it.Part, orDash(it.Bin), it.Qty)
	if it.Backorder != 0 {
		line += fmt.Sprintf("  backorder %d", it.Backorder)
	}
	if it.Description != "" {
		line += "  " + it.Description
	}
	if it.Suspicious() {
		line += "  [check]"
	}
	fmt.Println(line)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func sortedParts(m inventory.Map) []string {
	parts := make([]string, 0, len(m))
	for part := range m {
		parts = append(parts, part)
	}
	sort.Strings(parts)
	return parts
}
