package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/kruton/etamoo/pkg/ast"
	"github.com/kruton/etamoo/pkg/boltstore"
	"github.com/kruton/etamoo/pkg/builtins"
	"github.com/kruton/etamoo/pkg/eval"
	"github.com/kruton/etamoo/pkg/gamedb"
	"github.com/kruton/etamoo/pkg/server"
	"github.com/kruton/etamoo/pkg/task"
	"github.com/kruton/etamoo/pkg/value"
)

// envDefault returns the environment variable value if set, otherwise the
// fallback.
func envDefault(envVar, fallback string) string {
	if v := os.Getenv(envVar); v != "" {
		return v
	}
	return fallback
}

func main() {
	confFile := flag.String("conf", envDefault("MOO_CONF", ""), "Path to server config file (env: MOO_CONF)")
	dbPath := flag.String("db", envDefault("MOO_DB", ""), "Path to bbolt world database (env: MOO_DB)")
	port := flag.Int("port", 0, "TCP port to listen on, overrides config (env: MOO_PORT)")
	logFile := flag.String("logfile", envDefault("MOO_LOGFILE", ""), "Path to rotated server log (env: MOO_LOGFILE)")
	metricsPort := flag.Int("metrics-port", 0, "Prometheus metrics port, overrides config (env: MOO_METRICS_PORT)")
	flag.Parse()

	// Env fallbacks for the numeric flags.
	if *port == 0 {
		if p, err := strconv.Atoi(os.Getenv("MOO_PORT")); err == nil {
			*port = p
		}
	}
	if *metricsPort == 0 {
		if p, err := strconv.Atoi(os.Getenv("MOO_METRICS_PORT")); err == nil {
			*metricsPort = p
		}
	}

	var conf *server.Config
	if *confFile != "" {
		var err error
		conf, err = server.LoadConfig(*confFile)
		if err != nil {
			log.Fatalf("Error loading config: %v", err)
		}
		log.Printf("Loaded config from %s", *confFile)
	} else {
		conf = server.DefaultConfig()
	}
	if *port != 0 {
		conf.Port = *port
	}
	if *dbPath != "" {
		conf.DatabasePath = *dbPath
	}
	if *metricsPort != 0 {
		conf.MetricsPort = *metricsPort
	}
	if *logFile != "" {
		conf.LogFile = *logFile
	}

	if conf.LogFile != "" {
		log.SetOutput(&lumberjack.Logger{
			Filename:   conf.LogFile,
			MaxSize:    conf.LogMaxSize,
			MaxBackups: conf.LogKeep,
		})
	}
	log.Printf("Welcome to %s", server.VersionString())

	store, err := boltstore.Open(conf.DatabasePath)
	if err != nil {
		log.Fatalf("Error opening world database: %v", err)
	}
	defer store.Close()

	var world *gamedb.World
	if store.HasData() {
		world, err = store.LoadWorld()
		if err != nil {
			log.Fatalf("Error loading world: %v", err)
		}
	} else {
		if !conf.Seed {
			log.Fatalf("World database %s is empty and seeding is disabled", conf.DatabasePath)
		}
		world = seedWorld()
		if err := store.SaveWorld(world); err != nil {
			log.Fatalf("Error saving seeded world: %v", err)
		}
		log.Printf("Seeded minimal core into %s", conf.DatabasePath)
	}

	reg := eval.NewRegistry()
	sched := task.NewScheduler(world, reg)
	srv := server.NewServer(world, sched, reg, conf)
	srv.Store = store
	builtins.RegisterAll(reg, sched, srv)

	startTime := time.Now()
	if conf.MetricsPort > 0 {
		srv.Metrics = server.NewMetrics(world, sched, startTime)
		srv.Metrics.Serve(conf.MetricsPort)
		log.Printf("Metrics on port %d", conf.MetricsPort)
	}
	if *confFile != "" {
		if err := srv.WatchConfig(*confFile); err != nil {
			log.Printf("WARNING: %v", err)
		}
	}

	if code := srv.Listen(gamedb.SystemObject, conf.ListenPoint(), true); code != value.ErrNone {
		log.Fatalf("Error listening on %s", conf.ListenPoint())
	}
	log.Printf("Starting %s on port %d...", conf.ServerName, conf.Port)
	srv.ServerStarted()

	// Periodic checkpoints.
	if conf.DumpInterval > 0 {
		go func() {
			ticker := time.NewTicker(time.Duration(conf.DumpInterval) * time.Minute)
			defer ticker.Stop()
			for range ticker.C {
				if err := srv.Checkpoint(); err != nil {
					log.Printf("ERROR: checkpoint failed: %v", err)
				}
			}
		}()
	}

	// Run until an in-world shutdown() or a signal.
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	select {
	case msg := <-world.ShutdownC():
		srv.Shutdown(msg)
	case sig := <-sigc:
		srv.Shutdown(sig.String())
	}
}

// seedWorld builds the minimal core a fresh server needs to be usable:
// the system object, a root class, a wizard, and a first room, with a
// login verb that drops every connection straight into the wizard.
func seedWorld() *gamedb.World {
	w := gamedb.NewWorld()

	sys, _ := w.CreateObject(value.Nothing, value.Nothing)
	w.Get(sys).Name = "System Object"

	root, _ := w.CreateObject(value.Nothing, value.Nothing)
	w.Get(root).Name = "Root Class"
	w.Get(root).SetFlag(gamedb.FlagFertile, true)
	w.Get(root).SetFlag(gamedb.FlagReadable, true)

	wiz, _ := w.CreateObject(root, value.Nothing)
	wizObj := w.Get(wiz)
	wizObj.Name = "Wizard"
	wizObj.SetFlag(gamedb.FlagWizard, true)
	wizObj.SetFlag(gamedb.FlagProgrammer, true)
	w.SetPlayer(wiz, true)

	room, _ := w.CreateObject(root, wiz)
	w.Get(room).Name = "The First Room"
	w.Move(wiz, room)

	w.AddProperty(sys, "welcome_msg", value.List{
		value.Str("Welcome to a fresh world."),
		value.Str("Anything you type will connect you as the Wizard."),
	}, wiz, gamedb.PropRead)

	// do_login_command: any input connects as the wizard. Real cores
	// replace this with an actual login procedure.
	w.AddVerb(sys, &gamedb.Verb{
		Names: "do_login_command",
		Owner: wiz,
		Perms: gamedb.VerbExec | gamedb.VerbDebug,
		Dobj:  gamedb.ArgNone, Prep: gamedb.PrepNone, Iobj: gamedb.ArgNone,
		Program: &ast.Program{Stmts: []ast.Stmt{
			&ast.Return{E: &ast.Const{Val: wiz}},
		}},
	})

	w.LoadOptions()
	return w
}
