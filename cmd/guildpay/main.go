package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/guildpay/guildpay/internal/app"
	"github.com/guildpay/guildpay/internal/config"
)

func usage() {
	fmt.Fprintf(os.Stderr, `usage: guildpay [-config path] <command>

commands:
  serve                           run the API server and scheduler
  migrate                         run database migrations and exit
  generate-access-codes <n>       mint n owner onboarding codes
  create-operator <user> <pass>   provision an operator account
  expire-subscriptions            run one expiry sweep and exit
`)
	os.Exit(2)
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage()
	}

	cfg, errLoad := config.Load(*configPath)
	if errLoad != nil {
		log.WithError(errLoad).Fatal("load config failed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var errRun error
	switch args[0] {
	case "serve":
		errRun = app.RunServer(ctx, cfg)
	case "migrate":
		errRun = app.Migrate(ctx, cfg)
	case "generate-access-codes":
		if len(args) != 2 {
			usage()
		}
		count, errParse := strconv.Atoi(args[1])
		if errParse != nil || count < 1 {
			usage()
		}
		errRun = app.GenerateAccessCodes(ctx, cfg, count)
	case "create-operator":
		if len(args) != 3 {
			usage()
		}
		errRun = app.CreateOperator(ctx, cfg, args[1], args[2])
	case "expire-subscriptions":
		errRun = app.ExpireSubscriptions(ctx, cfg)
	default:
		usage()
	}
	if errRun != nil {
		log.WithError(errRun).Fatal("command failed")
	}
}
