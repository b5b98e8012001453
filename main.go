package main

import (
	"encoding/base64"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"git.fiblab.net/sim/syncer/v3"
	easy "git.fiblab.net/utils/logrus-easy-formatter"
	"github.com/sirupsen/logrus"
	"github.com/tsinghua-fib-lab/agentsociety-signal-tis/entity/junction/trafficlight"
	"github.com/tsinghua-fib-lab/agentsociety-signal-tis/output"
	"github.com/tsinghua-fib-lab/agentsociety-signal-tis/sandbox"
	"github.com/tsinghua-fib-lab/agentsociety-signal-tis/task"
	"github.com/tsinghua-fib-lab/agentsociety-signal-tis/utils/config"
	"github.com/tsinghua-fib-lab/agentsociety-signal-tis/utils/input"
)

var (
	// 分布式模式syncer地址，如果设置为空则激活独立部署模式
	syncerAddr = flag.String("syncer", "", "syncer address (empty means standalone mode), e.g. http://localhost:53001")
	// 模拟任务名
	job = flag.String("job", "job0", "the name of the whole simulation task")
	// 本程序监听的gRPC地址，设置为空则不提供RPC服务
	grpcAddr = flag.String("listen", "", "gRPC listening address (empty means no rpc), e.g. :51102")
	// 配置文件路径
	configPath = flag.String("config", "", "config file path")
	// 配置文件Base64编码后的数据
	configData = flag.String("config-data", "", "config file base64 encoded data")
	// 覆盖配置文件中的策略，便于与基线对比
	policy = flag.String("policy", "", "override control.policy.kind (tis, max_pressure, fixed)")

	// log
	logLevels = map[string]logrus.Level{
		"trace":    logrus.TraceLevel,
		"debug":    logrus.DebugLevel,
		"info":     logrus.InfoLevel,
		"warn":     logrus.WarnLevel,
		"error":    logrus.ErrorLevel,
		"critical": logrus.FatalLevel,
		"off":      logrus.PanicLevel,
	}
	logLevel = flag.String("log.level", "info", "日志级别（可选项：trace debug info warn error critical off）")

	log = logrus.WithField("module", "signal")
)

func main() {
	flag.Parse()
	logrus.SetFormatter(&easy.Formatter{
		TimestampFormat: "2006-01-02 15:04:05.0000",
		LogFormat:       "[%module%] [%time%] [%lvl%] %msg%\n",
	})
	// log: 运行时才修改
	if level, ok := logLevels[*logLevel]; ok {
		logrus.SetLevel(level)
	} else {
		log.Panicf("log.level must be one of %v", logLevels)
	}
	// 获取配置
	var file []byte
	var err error
	if *configPath != "" {
		file, err = os.ReadFile(*configPath)
		if err != nil {
			log.Panicf("config file load err: %v", err)
		}
	} else if *configData != "" {
		file, err = base64.StdEncoding.DecodeString(*configData)
		if err != nil {
			log.Panicf("config data load err: %v", err)
		}
	} else {
		log.Panic("config file or config data must be specified")
	}
	c, err := config.Parse(file)
	if err != nil {
		log.Panicf("config file load err: %v", err)
	}
	if *policy != "" {
		c.Control.Policy.Kind = *policy
		if err := c.Validate(); err != nil {
			log.Panicf("config err: %v", err)
		}
	}
	log.Infof("%+v", c)

	// 下载所有启动所需的数据
	in, err := input.Init(c)
	if err != nil {
		log.Fatalf("input: %v", err)
	}
	env, err := sandbox.New(in.Scenario, c.Input.Seed)
	if err != nil {
		log.Fatalf("sandbox: %v", err)
	}
	var scorer trafficlight.IFeatureScorer
	if in.Ensemble != nil {
		scorer = in.Ensemble
	}
	out, err := output.New(c.Output)
	if err != nil {
		log.Fatalf("output: %v", err)
	}

	var sidecar *syncer.Sidecar
	if *grpcAddr != "" {
		sidecar = syncer.NewSidecar(task.SelfName, *grpcAddr, *syncerAddr)
	}
	t, err := task.NewContext(*job, c, env, scorer, out, sidecar, sidecar != nil)
	if err != nil {
		log.Fatalf("task: %v", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-sigCh
		log.Warnf("receive %v, stop after current step", s)
		t.Stop()
	}()

	if _, err := t.Run(); err != nil {
		log.Fatalf("run %s: %v", t.RunID(), err)
	}
}
