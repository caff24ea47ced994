package main

import "github.com/accountd/apiserver/cmd"

func main() {
	cmd.Execute()
}
