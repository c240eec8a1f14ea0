package main

import "github.com/charliejllewellyn/airplanes.live-takserver-script/services/relay/internal/cli"

func main() {
	cli.Execute()
}
