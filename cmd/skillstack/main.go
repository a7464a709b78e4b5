// Command skillstack は学習リソース管理APIのサーバー、取り込みワーカー、
// マイグレーションを1つのバイナリで提供する。
//
//	skillstack [serve|worker|migrate [up|down|version]|healthcheck]
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/skillstack/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
