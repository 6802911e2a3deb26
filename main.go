package main

import "github.com/theirongolddev/ccquota/cmd"

func main() {
	cmd.Execute()
}
