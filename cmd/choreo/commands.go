package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/urfave/cli"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/kingrea/choreo/internal/backend"
	"github.com/kingrea/choreo/internal/config"
	"github.com/kingrea/choreo/internal/eventbridge"
	"github.com/kingrea/choreo/internal/logbook"
	"github.com/kingrea/choreo/internal/logging"
	"github.com/kingrea/choreo/internal/scene"
	"github.com/kingrea/choreo/internal/timeline"
	"github.com/kingrea/choreo/internal/tui"
)

// project bundles what every scene command needs.
type project struct {
	cfg     *config.Config
	logger  *logging.Logger
	journal *logbook.Logbook
	catalog *scene.Catalog
}

func openProject(c *cli.Context) (*project, error) {
	cfg, err := config.NewConfig(projectDir(c))
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg)
	if err != nil {
		return nil, err
	}
	journal, err := logbook.New(cfg.JournalPath())
	if err != nil {
		logger.Close()
		return nil, fmt.Errorf("open journal: %w", err)
	}
	catalog, err := scene.NewLoader(nil).LoadCatalog(cfg.SceneDirs()...)
	if err != nil {
		logger.Close()
		return nil, err
	}
	return &project{cfg: cfg, logger: logger, journal: journal, catalog: catalog}, nil
}

func (p *project) Close() {
	_ = p.logger.Close()
}

func (p *project) session(b timeline.Backend) (*timeline.Session, error) {
	opts := append(p.cfg.TimelineOptions(), timeline.WithLogger(p.logger))
	return timeline.NewSession(b, opts...)
}

// sceneRequest is the scene named on the command line plus its bindings.
type sceneRequest struct {
	def      scene.Definition
	bindings scene.Bindings
	duration time.Duration
}

func (p *project) request(c *cli.Context) (sceneRequest, error) {
	id := strings.TrimSpace(c.Args().First())
	if id == "" {
		return sceneRequest{}, fmt.Errorf("%s: scene id is required", c.Command.Name)
	}
	def, ok := p.catalog.Lookup(id)
	if !ok {
		return sceneRequest{}, fmt.Errorf("scene %s not found in %s", id, strings.Join(p.cfg.SceneDirs(), ", "))
	}
	subjects, err := parseKeyValues(c.StringSlice("bind"))
	if err != nil {
		return sceneRequest{}, fmt.Errorf("--bind: %w", err)
	}
	rawParams, err := parseKeyValues(c.StringSlice("set"))
	if err != nil {
		return sceneRequest{}, fmt.Errorf("--set: %w", err)
	}
	params := make(map[string]any, len(rawParams))
	for key, value := range rawParams {
		params[key] = parseParamValue(value)
	}
	duration := p.cfg.DefaultDuration()
	if c.IsSet("duration") {
		duration = c.Duration("duration")
	}
	return sceneRequest{
		def:      def,
		bindings: scene.Bindings{Subjects: subjects, Params: params},
		duration: duration,
	}, nil
}

func (p *project) run(ctx context.Context, session *timeline.Session, req sceneRequest, opts ...scene.RunOption) (*timeline.Block, timeline.Schedule, error) {
	block, sched, err := scene.Run(ctx, session, req.def, req.bindings, req.duration, opts...)
	if block != nil && block.Committed() {
		p.journal.Record(block.ID(), sched, err)
	}
	return block, sched, err
}

func runInit(_ context.Context, c *cli.Context) error {
	dir := projectDir(c)
	if err := config.InitDir(dir); err != nil {
		return fmt.Errorf("initialize %s: %w", config.ChoreoDir, err)
	}
	fmt.Printf("Initialized %s in %s\n", config.ChoreoDir, dir)
	return nil
}

func runScenes(_ context.Context, c *cli.Context) error {
	p, err := openProject(c)
	if err != nil {
		return err
	}
	defer p.Close()
	if p.catalog.Len() == 0 {
		fmt.Println("No scenes found.")
		return nil
	}
	for _, entry := range p.catalog.Entries() {
		name := entry.Name
		if name == "" {
			name = entry.ID
		}
		fmt.Printf("%s  %s\n", entry.ID, name)
		if entry.Description != "" {
			fmt.Printf("    %s\n", entry.Description)
		}
		if len(entry.Inputs) > 0 {
			fmt.Printf("    inputs: %s\n", strings.Join(entry.Inputs, ", "))
		}
		fmt.Printf("    params: %s\n", strings.Join(entry.Params, ", "))
		fmt.Printf("    source: %s\n", entry.Source)
	}
	return nil
}

func runPlan(ctx context.Context, c *cli.Context) error {
	p, err := openProject(c)
	if err != nil {
		return err
	}
	defer p.Close()
	req, err := p.request(c)
	if err != nil {
		return err
	}
	opts := []backend.RecorderOption{
		backend.WithRecorderLogger(p.logger),
		backend.WithMinDuration(c.Duration("min-duration")),
	}
	if path := strings.TrimSpace(c.String("manifest")); path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create manifest: %w", err)
		}
		defer f.Close()
		opts = append(opts, backend.WithManifest(f))
	}
	recorder := backend.NewRecorder(opts...)
	session, err := p.session(recorder)
	if err != nil {
		return err
	}
	_, sched, err := p.run(ctx, session, req)
	if err != nil {
		return err
	}
	fmt.Println(tui.RenderSchedule(sched))
	return nil
}

func runPlay(ctx context.Context, c *cli.Context) error {
	p, err := openProject(c)
	if err != nil {
		return err
	}
	defer p.Close()
	req, err := p.request(c)
	if err != nil {
		return err
	}
	player := backend.NewPlayer(backend.WithPlayerLogger(p.logger))
	defer player.Stop()
	session, err := p.session(player)
	if err != nil {
		return err
	}
	finished := make(chan struct{})
	_, sched, err := p.run(ctx, session, req, scene.OnFinish(func() { close(finished) }))
	if err != nil {
		return err
	}
	if c.Bool("no-tui") {
		select {
		case <-finished:
			fmt.Printf("Played %d action(s) over %s\n", len(sched.Entries), sched.Span())
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	monitor := tui.NewMonitor(sched, player.Events(), tui.WithLogbook(p.journal), tui.WithStop(player.Stop))
	if _, err := tea.NewProgram(monitor, tea.WithContext(ctx)).Run(); err != nil {
		return fmt.Errorf("run monitor: %w", err)
	}
	return nil
}

func runServe(ctx context.Context, c *cli.Context) error {
	p, err := openProject(c)
	if err != nil {
		return err
	}
	defer p.Close()
	req, err := p.request(c)
	if err != nil {
		return err
	}
	settings := eventbridge.SettingsFromConfig(p.cfg)
	if !settings.Enabled {
		return fmt.Errorf("serve: completion bridge is disabled (bridge.enabled / CHOREO_BRIDGE_ENABLED)")
	}
	var manifest io.Writer = os.Stdout
	if path := strings.TrimSpace(c.String("manifest")); path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create manifest: %w", err)
		}
		defer f.Close()
		manifest = f
	}

	router := eventbridge.NewRouter(eventbridge.RouterWithLogger(p.logger))
	server := eventbridge.NewServer(settings, eventbridge.WithProcessor(router), eventbridge.WithLogger(p.logger))
	if err := server.Start(ctx); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "completion bridge listening on %s\n", server.BaseURL())

	recorder := backend.NewRecorder(backend.WithManifest(manifest), backend.WithRecorderLogger(p.logger))
	session, err := p.session(recorder)
	if err != nil {
		_ = server.Shutdown(context.Background())
		return err
	}
	block, sched, err := p.run(ctx, session, req)
	if err != nil {
		_ = server.Shutdown(context.Background())
		return err
	}
	fmt.Fprintf(os.Stderr, "block %s: %d action(s), %d awaiting completion\n", block.ID(), len(sched.Entries), block.Pending())

	sub := router.Subscribe(block.ID())
	defer sub.Close()
	serveCtx, stopServing := context.WithCancel(ctx)
	defer stopServing()
	g, gctx := errgroup.WithContext(serveCtx)
	g.Go(func() error {
		defer stopServing()
		return eventbridge.Forward(gctx, sub, block, p.logger)
	})
	g.Go(func() error {
		return server.Serve(gctx)
	})
	if err := g.Wait(); err != nil {
		p.journal.Error("block %s: %v", block.ID(), err)
		return err
	}
	p.journal.Info("block %s: all completions received", block.ID())
	fmt.Fprintln(os.Stderr, "all completions received")
	return nil
}

func runJournal(_ context.Context, c *cli.Context) error {
	cfg, err := config.NewConfig(projectDir(c))
	if err != nil {
		return err
	}
	journal, err := logbook.New(cfg.JournalPath())
	if err != nil {
		return err
	}
	lines, total := journal.Tail(c.Int("lines"))
	if total == 0 {
		fmt.Println("Journal is empty.")
		return nil
	}
	for _, line := range lines {
		fmt.Println(line)
	}
	if total > len(lines) {
		fmt.Printf("(%d of %d lines)\n", len(lines), total)
	}
	return nil
}

// parseKeyValues parses repeated key=value flags.
func parseKeyValues(values []string) (map[string]string, error) {
	out := make(map[string]string, len(values))
	for _, value := range values {
		parts := strings.SplitN(value, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("expected key=value, got %q", value)
		}
		key := strings.TrimSpace(parts[0])
		if key == "" {
			return nil, fmt.Errorf("key is empty in %q", value)
		}
		out[key] = parts[1]
	}
	return out, nil
}

// parseParamValue decodes a flag value as a YAML scalar so numbers and
// booleans keep their type.
func parseParamValue(raw string) any {
	var value any
	if err := yaml.Unmarshal([]byte(raw), &value); err != nil || value == nil {
		return raw
	}
	switch value.(type) {
	case map[string]any, []any:
		return raw
	}
	return value
}
