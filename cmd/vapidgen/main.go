// vapidgen prints a fresh VAPID key pair for the push configuration.
package main

import (
	"fmt"
	"log"

	"github.com/brunovales/painelzap/internal/push"
)

func main() {
	publicKey, privateKey, err := push.GenerateKeys()
	if err != nil {
		log.Fatalf("generate VAPID keys: %v", err)
	}

	fmt.Printf("PAINELZAP_VAPID_PUBLIC_KEY=%s\n", publicKey)
	fmt.Printf("PAINELZAP_VAPID_PRIVATE_KEY=%s\n", privateKey)
}
