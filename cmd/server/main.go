package main

import "github.com/MotorTG/motortg-crud/cmd/server/cmd"

func main() {
	cmd.Execute()
}
