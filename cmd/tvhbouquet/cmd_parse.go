package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/John-Robertt/tvhbouquet/internal/app/planner"
	"github.com/John-Robertt/tvhbouquet/internal/app/run"
	"github.com/John-Robertt/tvhbouquet/internal/config"
	"github.com/John-Robertt/tvhbouquet/internal/domain"
	"github.com/John-Robertt/tvhbouquet/internal/ingest"
	"github.com/John-Robertt/tvhbouquet/internal/log"
)

type parseFlags struct {
	numbering string
	useCache  bool
	json      bool
}

func (c *cli) newParseCmd() *cobra.Command {
	var f parseFlags
	cmd := &cobra.Command{
		Use:   "parse [source_url]",
		Short: "只抓取并解析频道列表（不连接 Tvheadend）",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runParse(cmd, args, f)
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.numbering, "numbering", "", "编号方式：per_category|global")
	fl.BoolVar(&f.useCache, "use-cache", false, "优先使用本地页面缓存")
	fl.BoolVar(&f.json, "json", false, "输出 JSON（stdout 不是终端时默认如此）")
	return cmd
}

func (c *cli) runParse(cmd *cobra.Command, args []string, f parseFlags) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("读取当前目录失败：%w", err)
	}
	ca := c.baseArgs(cmd)
	ca.SkipCatalog = true
	if len(args) == 1 {
		ca.SourceURL = &args[0]
	}
	if cmd.Flags().Changed("numbering") {
		ca.Numbering = &f.numbering
	}
	if cmd.Flags().Changed("use-cache") {
		ca.UseCache = &f.useCache
	}
	eff, err := config.LoadEffective(cwd, ca)
	if err != nil {
		return err
	}
	c.configureLog(eff.LogLevel)

	in := ingest.Ingestor{
		Fetcher: run.NewFetcher(eff, log.WithComponent("cache")),
		Options: ingest.Options{
			Detectors: eff.CategoryDetectors,
			Numbering: eff.Numbering,
			MaxPages:  eff.Fetch.MaxPages,
		},
		Log: log.WithComponent("ingest"),
	}
	listing, err := in.Ingest(cmd.Context(), eff.SourceURL)
	if err != nil {
		fmt.Fprintf(c.stderr, "抓取频道列表失败：%v\n", err)
		return &exitError{code: 1}
	}
	if eff.Numbering == ingest.NumberGlobal {
		listing.Groups = domain.GroupEntries(planner.NumberGlobal(listing.Entries()))
	}

	if f.json || !isTTY(c.stdout) {
		return writeJSON(c.stdout, newListingView(listing))
	}
	writeListingText(c.stdout, listing)
	return nil
}

// listingView 是 parse 命令的 JSON 输出形状。
type listingView struct {
	SourceURL    string         `json:"source_url"`
	Pages        []string       `json:"pages"`
	SkippedPages []string       `json:"skipped_pages"`
	Categories   []categoryView `json:"categories"`
}

type categoryView struct {
	Name    string      `json:"name"`
	Entries []entryView `json:"entries"`
}

type entryView struct {
	Number       int    `json:"number"`
	Name         string `json:"name"`
	DisplayText  string `json:"display_text"`
	Quality      string `json:"quality,omitempty"`
	Frequency    string `json:"frequency,omitempty"`
	Polarization string `json:"polarization,omitempty"`
	SymbolRate   string `json:"symbol_rate,omitempty"`
	FEC          string `json:"fec,omitempty"`
	Modulation   string `json:"modulation,omitempty"`
}

func newListingView(l domain.Listing) listingView {
	v := listingView{
		SourceURL:    l.SourceURL,
		Pages:        append([]string{}, l.Pages...),
		SkippedPages: append([]string{}, l.SkippedPages...),
		Categories:   make([]categoryView, 0, len(l.Groups)),
	}
	for _, g := range l.Groups {
		cv := categoryView{Name: g.Category, Entries: make([]entryView, 0, len(g.Entries))}
		for _, e := range g.Entries {
			cv.Entries = append(cv.Entries, entryView{
				Number:       e.Number,
				Name:         e.Name,
				DisplayText:  e.DisplayText,
				Quality:      string(e.Quality),
				Frequency:    e.Frequency,
				Polarization: string(e.Polarization),
				SymbolRate:   e.SymbolRate,
				FEC:          e.FEC,
				Modulation:   e.Modulation,
			})
		}
		v.Categories = append(v.Categories, cv)
	}
	return v
}

func writeListingText(w io.Writer, l domain.Listing) {
	for _, g := range l.Groups {
		fmt.Fprintf(w, "%s (%d)\n", g.Category, len(g.Entries))
		for _, e := range g.Entries {
			fmt.Fprintf(w, "  %4d  %-40s %s\n", e.Number, truncate(e.Name, 40), technicalSummary(e.TechnicalFields))
		}
	}
	fmt.Fprintf(w, "共 %d 个频道，%d 个分类，%d 个页面", l.Len(), len(l.Groups), len(l.Pages))
	if n := len(l.SkippedPages); n > 0 {
		fmt.Fprintf(w, "（跳过 %d 个页面）", n)
	}
	fmt.Fprintln(w)
}

func technicalSummary(t domain.TechnicalFields) string {
	parts := make([]string, 0, 6)
	for _, s := range []string{string(t.Quality), t.Frequency, string(t.Polarization), t.SymbolRate, t.FEC, t.Modulation} {
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}
