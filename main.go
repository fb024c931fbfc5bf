package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/snowflakedb/gosnowflake"
	_ "modernc.org/sqlite"

	"datachat/agent"
	"datachat/config"
	"datachat/dbpool"
	"datachat/export"
	"datachat/logger"
	"datachat/schemaindex"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to config.json (default ~/DataChat/config.json)")
		question   = flag.String("q", "", "question to answer")
		dsn        = flag.String("dsn", "", "connection string, overrides config")
		dbType     = flag.String("db-type", "", "database type (mysql, sqlite, snowflake, ...), overrides config")
		usePlanner = flag.Bool("plan", false, "use the up-front step planner instead of the tool-calling loop")
		exportPath = flag.String("export", "", "write query results to this .xlsx file")
		verbose    = flag.Bool("v", false, "print progress events")
	)
	flag.Parse()

	if *question == "" {
		fmt.Fprintln(os.Stderr, "usage: datachat -q \"question\" [-dsn ...] [-db-type ...] [-export out.xlsx]")
		os.Exit(2)
	}

	if err := run(*configPath, *question, *dsn, *dbType, *exportPath, *usePlanner, *verbose); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(configPath, question, dsn, dbType, exportPath string, usePlanner, verbose bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if configPath == "" {
		var err error
		configPath, err = config.DefaultPath()
		if err != nil {
			return err
		}
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if dsn != "" {
		cfg.DSN = dsn
	}
	if dbType != "" {
		cfg.DatabaseType = dbType
	}
	if cfg.DSN == "" {
		return fmt.Errorf("no connection string: set dsn in %s or pass -dsn", configPath)
	}

	log := logger.NewLogger()
	if dir, dirErr := cfg.StorageDir(); dirErr == nil {
		if mkErr := os.MkdirAll(dir, 0755); mkErr == nil {
			if initErr := log.Init(dir); initErr != nil {
				fmt.Fprintln(os.Stderr, "warning: file logging disabled:", initErr)
			}
		}
	}
	defer log.Close()

	engine, err := dbpool.EngineFor(cfg.DatabaseType)
	if err != nil {
		return err
	}
	manager := dbpool.New(engine, log.Log)
	db, err := manager.Open(dbpool.OpenOptions{Engine: engine, Path: cfg.DSN, Mode: dbpool.ModeReadOnly})
	if err != nil {
		return err
	}
	defer db.Close()

	searcher := schemaindex.New(db, engine, log.Log)
	if err := searcher.Refresh(ctx); err != nil {
		return err
	}

	modelService, err := agent.NewModelService(ctx, cfg)
	if err != nil {
		return err
	}

	executor := func(ctx context.Context, sqlText string) (*agent.SQLResult, error) {
		result, err := dbpool.QueryRows(ctx, db, sqlText)
		if err != nil {
			return nil, err
		}
		return &agent.SQLResult{
			Data:          result.Data,
			RowCount:      result.RowCount,
			ExecutionTime: result.ExecutionTime,
		}, nil
	}

	var progress agent.PlanProgressCallback
	if verbose {
		progress = func(event agent.PlanStepEvent) {
			if event.Type == agent.EventStepCompleted || event.Type == agent.EventStepError {
				fmt.Fprintf(os.Stderr, "[%s] step %d: %s (%d rows) %s\n",
					event.Type, event.StepIndex, event.Purpose, event.RowCount, event.Error)
			} else {
				fmt.Fprintf(os.Stderr, "[%s]\n", event.Type)
			}
		}
	}

	var plan *agent.QueryPlan
	if usePlanner {
		dialect := agent.SQLDialect{DatabaseType: cfg.DatabaseType, DatabaseName: cfg.DatabaseName}
		runner := agent.NewPlanRunner(modelService.ChatModel, dialect, cfg.MaxRetries, cfg.MaxRows, log.Log)
		search, searchErr := searcher.SearchSimilarTables(ctx, 0, question, cfg.SchemaTopK)
		if searchErr != nil {
			return fmt.Errorf("schema search failed: %w", searchErr)
		}
		if !search.Success {
			return fmt.Errorf("schema search failed: %s", search.Error)
		}
		plan, err = runner.Run(ctx, question, search.Data, executor)
		if err != nil {
			return err
		}
		fmt.Println(plan.FinalAnswer)
	} else {
		orchestrator := modelService.NewOrchestrator(searcher, &agent.OrchestratorOptions{
			Progress:   progress,
			Logger:     log.Log,
			MaxRetries: cfg.MaxRetries,
			MaxRows:    cfg.MaxRows,
			SchemaTopK: cfg.SchemaTopK,
		})
		resp, respErr := orchestrator.AnswerQuestion(ctx, agent.QuestionRequest{
			Question: question,
			Executor: executor,
		})
		if respErr != nil {
			return respErr
		}
		plan = resp.Plan
		fmt.Println(resp.Answer)
	}

	if plan != nil && plan.ChartData != nil && verbose {
		fmt.Fprintf(os.Stderr, "chart: %s (%d points)\n", plan.ChartData.Type, len(plan.ChartData.Data))
	}

	if exportPath != "" && plan != nil {
		data, exportErr := export.NewExcelExportService().ExportPlanToExcel(plan)
		if exportErr != nil {
			return fmt.Errorf("export failed: %w", exportErr)
		}
		if writeErr := os.WriteFile(exportPath, data, 0644); writeErr != nil {
			return fmt.Errorf("export failed: %w", writeErr)
		}
		fmt.Fprintf(os.Stderr, "results exported to %s\n", exportPath)
	}

	return nil
}
