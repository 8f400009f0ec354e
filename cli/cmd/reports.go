package cmd

import (
	"errors"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/docbench/cli/render"
	"github.com/pithecene-io/docbench/report"
	"github.com/pithecene-io/docbench/store"
)

// ReportSummary is one row of reports list.
type ReportSummary struct {
	RunID       string        `json:"run_id"`
	Server      string        `json:"server"`
	StartedAt   time.Time     `json:"started_at"`
	Outcome     string        `json:"outcome"`
	Files       int64         `json:"files"`
	Succeeded   int64         `json:"succeeded"`
	Upload      time.Duration `json:"upload_ns"`
	Convergence time.Duration `json:"convergence_ns"`
}

func summarize(rep *report.RunReport) ReportSummary {
	return ReportSummary{
		RunID:       rep.RunID,
		Server:      rep.Server,
		StartedAt:   rep.StartedAt,
		Outcome:     string(rep.Outcome),
		Files:       rep.FilesSubmitted,
		Succeeded:   rep.FilesSucceeded,
		Upload:      rep.Phases.Upload,
		Convergence: rep.Phases.Convergence,
	}
}

// ReportsCommand returns the reports command group.
func ReportsCommand() *cli.Command {
	serverFlag := &cli.StringFlag{
		Name:  "server",
		Usage: "Only reports for this server address (host:port)",
	}
	return &cli.Command{
		Name:  "reports",
		Usage: "Read stored load test reports",
		Subcommands: []*cli.Command{
			{
				Name:   "latest",
				Usage:  "Show the most recent stored report",
				Flags:  withOutputFlags(append(storeFlags(), serverFlag)...),
				Action: reportsLatestAction,
			},
			{
				Name:  "list",
				Usage: "List stored reports, newest first",
				Flags: withOutputFlags(append(storeFlags(), serverFlag,
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of reports (0 for all)",
						Value: 20,
					},
				)...),
				Action: reportsListAction,
			},
			{
				Name:  "show",
				Usage: "Show a report file written by loadtest --report-file",
				Flags: withOutputFlags(
					&cli.StringFlag{
						Name:     "file",
						Usage:    "Report file path",
						Required: true,
					},
				),
				Action: reportsShowAction,
			},
		},
	}
}

func openReportStore(c *cli.Context) (*store.Store, error) {
	s, err := loadSettings(c)
	if err != nil {
		return nil, err
	}
	choice := s.storeChoice(c)
	if choice.path == "" {
		return nil, cli.Exit("no report store configured (set --store-path or storage.path)", 1)
	}
	return openStore(c.Context, choice)
}

func reportsLatestAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	st, err := openReportStore(c)
	if err != nil {
		return err
	}
	rep, err := st.Latest(c.Context, c.String("server"))
	if errors.Is(err, store.ErrNoReports) {
		return cli.Exit("no reports found", 1)
	}
	if err != nil {
		return err
	}
	return r.Render(rep)
}

func reportsListAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	st, err := openReportStore(c)
	if err != nil {
		return err
	}
	reports, err := st.List(c.Context, c.String("server"), c.Int("limit"))
	if err != nil {
		return err
	}
	rows := make([]ReportSummary, 0, len(reports))
	for _, rep := range reports {
		rows = append(rows, summarize(rep))
	}
	return r.Render(rows)
}

func reportsShowAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	rep, err := report.ReadFile(c.String("file"))
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	return r.Render(rep)
}
