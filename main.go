package main

import (
	"os"

	"github.com/tnmt-1/sns-multi-posts/cmd"
	"github.com/tnmt-1/sns-multi-posts/internal/logutil"
)

func main() {
	if err := cmd.Execute(); err != nil {
		logutil.Errorf("%v", err)
		os.Exit(1)
	}
}
