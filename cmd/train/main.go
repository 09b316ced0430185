// Command train runs MAD3PG training on the vehicular network
// environment described by a YAML configuration file.
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	easy "git.fiblab.net/utils/logrus-easy-formatter"
	"github.com/sirupsen/logrus"

	"github.com/neardws/aovrl/agent/mad3pg"
	"github.com/neardws/aovrl/environment"
	"github.com/neardws/aovrl/loop"
	"github.com/neardws/aovrl/tracking"
	"github.com/neardws/aovrl/utils/fileutils"
)

var (
	configPath      = flag.String("config", "", "environment config file path")
	agentConfigPath = flag.String("agent-config", "",
		"agent hyperparameter JSON file (defaults used when empty)")
	numSteps = flag.Int("steps", 300000, "number of environment steps")
	seed     = flag.Uint64("seed", 0, "random seed (0 uses the config seed)")
	outDir   = flag.String("out", "runs/", "output directory for run artifacts")
	snapshot = flag.Bool("snapshot", false,
		"run as evaluator loop and persist environment snapshots")

	logLevels = map[string]logrus.Level{
		"trace": logrus.TraceLevel,
		"debug": logrus.DebugLevel,
		"info":  logrus.InfoLevel,
		"warn":  logrus.WarnLevel,
		"error": logrus.ErrorLevel,
	}
	logLevel = flag.String("log.level", "info",
		"log level (trace debug info warn error)")

	log = logrus.WithField("module", "train")
)

func main() {
	flag.Parse()
	logrus.SetFormatter(&easy.Formatter{
		TimestampFormat: "2006-01-02 15:04:05.0000",
		LogFormat:       "[%module%] [%time%] [%lvl%] %msg%\n",
	})
	if level, ok := logLevels[*logLevel]; ok {
		logrus.SetLevel(level)
	} else {
		log.Fatalf("unknown log level %v", *logLevel)
	}

	if *configPath == "" {
		log.Fatal("no config file given, use -config")
	}
	envConf, err := environment.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("could not load config: %v", err)
	}
	if *seed != 0 {
		envConf.Seed = *seed
	}

	env, err := environment.NewVehicularNetworkEnv(envConf)
	if err != nil {
		log.Fatalf("could not build environment: %v", err)
	}

	agentConf, err := mad3pg.DefaultConfig()
	if *agentConfigPath != "" {
		agentConf, err = mad3pg.LoadConfig(*agentConfigPath)
	}
	if err != nil {
		log.Fatalf("could not build agent config: %v", err)
	}
	agentConf.Seed = envConf.Seed

	dims := mad3pg.Dimensions{
		VehicleNumber:          envConf.VehicleNumber,
		VehicleObservationSize: envConf.VehicleObservationSize(),
		EdgeObservationSize:    envConf.EdgeObservationSize(),
		VehicleActionSize:      envConf.VehicleActionSize(),
		EdgeActionSize:         envConf.EdgeActionSize(),
	}

	runDir, err := fileutils.NewRunDir(*outDir, "mad3pg")
	if err != nil {
		log.Fatalf("could not create run directory: %v", err)
	}
	log.Infof("writing run artifacts to %v", runDir)

	counter := tracking.NewCounter()
	learnerLogger := tracking.NewLogger(logrus.StandardLogger(), "learner")

	agent, err := mad3pg.NewAgent(agentConf, dims,
		mad3pg.NewSingleReplica(), counter, learnerLogger, nil, nil)
	if err != nil {
		log.Fatalf("could not build agent: %v", err)
	}

	label := loop.TrainLabel
	if *snapshot {
		label = loop.EvaluatorLabel
	}
	loopLogger := tracking.NewLogger(logrus.StandardLogger(), label)
	envLoop, err := loop.New(env, agent, counter, loopLogger, label, runDir)
	if err != nil {
		log.Fatalf("could not build environment loop: %v", err)
	}

	// A signal stops the run at the next step boundary, letting the
	// in-flight step finish
	stop := make(chan struct{})
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-signals
		log.Info("stop requested, finishing in-flight step")
		close(stop)
	}()

	log.Infof("running %v for %v steps", label, *numSteps)
	if err := envLoop.Run(*numSteps, stop); err != nil {
		log.Fatalf("training run failed: %v", err)
	}
	log.Infof("finished after %v steps", envLoop.Steps())
}
