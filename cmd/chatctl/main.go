package main

import "github.com/suPer8Hu/sealchat/internal/cli"

func main() {
	cli.Execute()
}
