package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/strongdm/errnotify/internal/cli"
)

func main() {
	if err := cli.NewNotifyCmd().Execute(); err != nil {
		logrus.WithError(err).Error("notify failed")
		os.Exit(1)
	}
}
