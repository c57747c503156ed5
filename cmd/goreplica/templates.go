package main

import (
	"io/ioutil"
	"time"

	"github.com/goreplica/goreplica/engine/config"
	"github.com/goreplica/goreplica/engine/post"
	"github.com/goreplica/goreplica/engine/storage"
	"github.com/goreplica/goreplica/engine/template"
	"gopkg.in/yaml.v3"
)

func templates(cmd string, files []string) {
	if args.configFile != "" {
		config.SetConfigFile(args.configFile)
	}
	err := storage.Initialize(config.GetStorage())
	checkErrorOrQuit(err, "initialize storage failed")
	defer storage.Shutdown()

	switch cmd {
	case "list":
		listTemplates()
	case "import":
		if len(files) == 0 {
			showMsgAndQuit("should specify template files")
		}
		for _, file := range files {
			importTemplate(file)
		}
	default:
		showMsgAndQuit("unknown templates command: %s", cmd)
	}
}

// waitPosted runs posted storage callbacks until done is closed
func waitPosted(done chan struct{}) {
	for {
		post.Tick()
		select {
		case <-done:
			return
		case <-time.After(time.Millisecond * 10):
		}
	}
}

func listTemplates() {
	done := make(chan struct{})
	storage.List(func(names []string, err error) {
		defer close(done)
		checkErrorOrQuit(err, "list templates failed")
		showMsg("%d templates", len(names))
		for _, name := range names {
			showMsg("\t%s", name)
		}
	})
	waitPosted(done)
}

func importTemplate(file string) {
	data, err := ioutil.ReadFile(file)
	checkErrorOrQuit(err, "read "+file+" failed")
	t := &template.ObjectTemplate{}
	err = yaml.Unmarshal(data, t)
	checkErrorOrQuit(err, "parse "+file+" failed")
	if t.Name == "" {
		showMsgAndQuit("%s: template name is empty", file)
	}

	done := make(chan struct{})
	storage.Save(t, func(err error) {
		defer close(done)
		checkErrorOrQuit(err, "save template "+t.Name+" failed")
		showMsg("template %s saved", t.Name)
	})
	waitPosted(done)
}
