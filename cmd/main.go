package main

import (
	"github.com/cwbudde/saxpycl/internal/report"
)

func main() {
	report.New().Check(rootCmd.Execute())
}
