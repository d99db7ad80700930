package main

import "github.com/JakeFAU/okapi-harvester/cmd"

func main() {
	cmd.Execute()
}
