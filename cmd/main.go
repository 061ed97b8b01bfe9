package main

import (
	"fmt"
	"log"

	"github.com/IMQS/cli"
	"github.com/IMQS/smsverify"
)

func main() {
	app := cli.App{}
	app.Description = "smsverify -c=configfile [options] command"
	app.DefaultExec = exec
	app.AddCommand("run", "Run the SMS verification service")
	app.AddCommand("agents", "List the SMS agents and workers this build supports")
	app.AddValueOption("c", "configfile", "Configuration file. This option is mandatory for run")
	app.Run()
}

func exec(cmdName string, args []string, options cli.OptionSet) int {
	if cmdName == "agents" {
		r := smsverify.DefaultRegistry()
		fmt.Printf("Agents:  %v\n", r.AgentNames())
		fmt.Printf("Workers: %v %v\n", r.WorkerNames(), smsverify.QueueWorkerName)
		return 0
	}

	configFile := options["c"]
	if configFile == "" {
		fmt.Printf("You must specify a config file\n")
		return 1
	}

	s := &smsverify.VerifyServer{}
	if err := s.Config.NewConfig(configFile); err != nil {
		fmt.Printf("Error constructing SMS verification config: %v\n", err)
		return 1
	}

	run := func() {
		if err := s.Initialize(); err != nil {
			log.Fatal(err)
			return
		}
		defer s.Close()
		if err := s.StartServer(); err != nil {
			log.Fatal(err)
			return
		}
	}

	switch cmdName {
	case "run":
		if !smsverify.RunAsService(run) {
			run()
		}
	default:
		fmt.Printf("Unknown command %v\n", cmdName)
		return 1
	}

	return 0
}
