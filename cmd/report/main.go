// report 一次性分析命令：汇总某市场一段时间内的区间指标。
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"crocket-go/store"
)

const timeLayout = "2006-01-02 15:04:05"

func main() {
	dbPath := flag.String("db", "crocket.db", "数据库路径")
	mkt := flag.String("market", "", "市场符号，如 BTC-LTC")
	from := flag.String("from", "", "起始时间（含），格式 2006-01-02 15:04:05，本地时区")
	to := flag.String("to", "", "结束时间（不含），默认当前时间")
	flag.Parse()

	if *mkt == "" {
		fmt.Fprintln(os.Stderr, "report: -market is required")
		os.Exit(2)
	}

	fromTime, err := time.ParseInLocation(timeLayout, *from, time.Local)
	if err != nil {
		fmt.Fprintf(os.Stderr, "report: bad -from: %v\n", err)
		os.Exit(2)
	}
	toTime := time.Now()
	if *to != "" {
		if toTime, err = time.ParseInLocation(timeLayout, *to, time.Local); err != nil {
			fmt.Fprintf(os.Stderr, "report: bad -to: %v\n", err)
			os.Exit(2)
		}
	}

	db, err := store.Open(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "report: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	r, err := db.BuildReport(ctx, *mkt, fromTime, toTime)
	if err != nil {
		fmt.Fprintf(os.Stderr, "report: %v\n", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "market\t%s\n", r.Market)
	fmt.Fprintf(w, "period\t%s - %s\n", fromTime.Format(timeLayout), toTime.Format(timeLayout))
	fmt.Fprintf(w, "intervals\t%d\n", r.Rows)
	fmt.Fprintf(w, "volume\t%s\n", r.Volume.String())
	fmt.Fprintf(w, "buys\t%d\n", r.Buys)
	fmt.Fprintf(w, "sells\t%d\n", r.Sells)
	fmt.Fprintf(w, "price min\t%s\n", r.MinPrice.String())
	fmt.Fprintf(w, "price max\t%s\n", r.MaxPrice.String())
	fmt.Fprintf(w, "price mean\t%s\n", r.MeanPrice.String())
	fmt.Fprintf(w, "vwap\t%s\n", r.VWAP.String())
	w.Flush()
}
