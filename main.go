/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package main

import "salesbot/cmd"

func main() {
	cmd.Execute()
}
