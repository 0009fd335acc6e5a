// sealcreds 把 API 凭证加密写入文件，供守护进程启动时解密。
// 口令从 CROCKET_CREDS_PASSPHRASE 读取，避免出现在 shell 历史里。
package main

import (
	"flag"
	"fmt"
	"os"

	"crocket-go/creds"
)

func main() {
	out := flag.String("out", "credentials.enc", "输出文件路径")
	key := flag.String("key", "", "API key")
	secret := flag.String("secret", "", "API secret")
	flag.Parse()

	if *key == "" || *secret == "" {
		fmt.Fprintln(os.Stderr, "sealcreds: -key and -secret are required")
		os.Exit(2)
	}
	pass := os.Getenv("CROCKET_CREDS_PASSPHRASE")
	if pass == "" {
		fmt.Fprintln(os.Stderr, "sealcreds: CROCKET_CREDS_PASSPHRASE is empty")
		os.Exit(2)
	}

	if err := creds.Seal(*out, creds.Credentials{Key: *key, Secret: *secret}, pass); err != nil {
		fmt.Fprintf(os.Stderr, "sealcreds: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("credentials sealed to %s\n", *out)
}
