package main

import "github.com/rkv-db/rkv/cmd"

func main() {
	cmd.Execute()
}
