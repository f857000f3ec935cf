package main

import "github.com/ValentinKolb/shmkv/cmd"

func main() {
	cmd.Execute()
}
