package main

//go-build: CGO_ENABLED=0

import (
	"context"
	"flag"

	"github.com/golang/glog"

	"github.com/robotalks/uci.go/pkg/framework"
	"github.com/robotalks/uci.go/pkg/platform"
	"github.com/robotalks/uci.go/pkg/uci/msgs"
)

func init() {
	platform.SetupFlags()
}

func main() {
	flag.Parse()
	defer glog.Flush()

	conf := platform.MustLoad()
	runner := framework.NewRunner().HandleSignals()
	host, err := platform.Open(runner.Context, conf)
	if err != nil {
		glog.Exitf("open %s: %v", conf.LinkURL, err)
	}
	host.Handlers = append(host.Handlers, msgs.HandleReportFunc(func(ctx context.Context, r *msgs.Report) error {
		glog.Infof("%s", r)
		return nil
	}))
	if err := runner.Go(framework.NamedRun("host", host)).Wait(); err != nil {
		glog.Exitf("host: %v", err)
	}
}
