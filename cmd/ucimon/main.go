package main

import (
	"flag"
	"log"
	"os"

	"github.com/robotalks/uci.go/pkg/uci/link/mqtt"
	"github.com/robotalks/uci.go/pkg/uci/msgs"
)

var (
	mqttURL = "mqtt://localhost:1883/uci/"
	device  = "+"
)

func init() {
	if val := os.Getenv("UCI_MQTT_URL"); val != "" {
		mqttURL = val
	}
	flag.StringVar(&mqttURL, "mqtt", mqttURL, "MQTT broker URL.")
	flag.StringVar(&device, "device", device, "Device ID, + for all devices.")
}

func main() {
	flag.Parse()
	log.SetFlags(log.Lmicroseconds)

	q, err := mqtt.NewQueueFromURL(mqttURL)
	if err != nil {
		log.Fatalln(err)
	}
	if err := q.Connect(); err != nil {
		log.Fatalln(err)
	}
	defer q.Close()

	mqtt.SubscribeReports(q, device, func(ev *mqtt.ReportEvent) {
		out, err := msgs.ReportJSON(ev.Report)
		if err != nil {
			log.Printf("%s/%s: %v", ev.Device, ev.Name, err)
			return
		}
		log.Printf("%s/%s: %s", ev.Device, ev.Name, out)
	})
	<-(chan struct{})(nil)
}
