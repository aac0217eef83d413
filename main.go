package main

import "lab-scheduler.com/lab-scheduler/cmd"

func main() {
	cmd.Execute()
}
