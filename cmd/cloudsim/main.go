package main

import (
	"flag"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/Reylak/cloudsim"
)

func main() {
	var configPath string
	var metricsAddr string
	var debug bool
	flag.StringVar(&configPath, "config", "", "YAML configuration overlay")
	flag.StringVar(&metricsAddr, "metrics", "", "prometheus listen address (e.g. :9090), \"\" to disable")
	flag.BoolVar(&debug, "debug", false, "debug logging")

	cloudsim.PreConfig()
	cloudsim.ParseCommandLine()

	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if debug {
		logrus.SetLevel(logrus.DebugLevel)
	}

	if configPath != "" {
		if err := cloudsim.LoadConfig(configPath); err != nil {
			logrus.WithError(err).Fatal("configuration overlay failed")
		}
	}
	if err := cloudsim.PostConfig(); err != nil {
		logrus.WithError(err).Fatal("invalid configuration")
	}

	if metricsAddr != "" {
		reg := prometheus.NewRegistry()
		cloudsim.RegisterMetrics(reg)
		http.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		go func() {
			if err := http.ListenAndServe(metricsAddr, nil); err != nil {
				logrus.WithError(err).Error("metrics endpoint failed")
			}
		}()
		logrus.Infof("serving metrics on %s/metrics", metricsAddr)
	}

	results := cloudsim.RunExperiments()
	if len(results) == 0 {
		os.Exit(1)
	}
}
