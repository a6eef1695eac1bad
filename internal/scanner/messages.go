package scanner

import (
	"fmt"
	"strings"

	"github.com/brunovales/painelzap/internal/push"
)

// Notification texts are pt-BR: that is what the resellers read.

// FormatSubscriptions builds the payload for a subscription tier.
func FormatSubscriptions(tier Tier, items []Item) push.Payload {
	var title string
	switch tier.Key {
	case "today":
		if len(items) == 1 {
			title = "⚠️ Assinatura vence HOJE!"
		} else {
			title = fmt.Sprintf("⚠️ %d assinaturas vencem HOJE!", len(items))
		}
	case "tomorrow":
		title = pluralTitle(len(items), "Assinatura vence amanhã", "%d assinaturas vencem amanhã")
	default:
		title = pluralTitle(len(items), "Assinatura vencendo em até 3 dias", "%d assinaturas vencendo em até 3 dias")
	}

	return push.Payload{
		Title: title,
		Body:  nameList(items),
		Tag:   "subs-" + tier.Key,
		URL:   "/clientes",
	}
}

// FormatApps builds the payload for an external-app credential tier.
func FormatApps(tier Tier, items []Item) push.Payload {
	var title string
	switch tier.Key {
	case "today":
		title = pluralTitle(len(items), "⚠️ Aplicativo vence HOJE!", "⚠️ %d aplicativos vencem HOJE!")
	case "tomorrow":
		title = pluralTitle(len(items), "Aplicativo vence amanhã", "%d aplicativos vencem amanhã")
	case "d3":
		title = pluralTitle(len(items), "Aplicativo vencendo em até 3 dias", "%d aplicativos vencendo em até 3 dias")
	case "d7":
		title = pluralTitle(len(items), "Aplicativo vencendo em até 7 dias", "%d aplicativos vencendo em até 7 dias")
	case "d15":
		title = pluralTitle(len(items), "Aplicativo vencendo em até 15 dias", "%d aplicativos vencendo em até 15 dias")
	default:
		title = pluralTitle(len(items), "Aplicativo vencendo em até 30 dias", "%d aplicativos vencendo em até 30 dias")
	}

	return push.Payload{
		Title: title,
		Body:  nameList(items),
		Tag:   "apps-" + tier.Key,
		URL:   "/clientes/apps",
	}
}

func pluralTitle(n int, singular, pluralFormat string) string {
	if n == 1 {
		return singular
	}
	return fmt.Sprintf(pluralFormat, n)
}

// nameList joins up to three names, eliding the rest.
func nameList(items []Item) string {
	names := make([]string, 0, 3)
	for i, item := range items {
		if i == 3 {
			names = append(names, fmt.Sprintf("e mais %d", len(items)-3))
			break
		}
		label := item.Name
		if item.Detail != "" {
			label += " (" + item.Detail + ")"
		}
		names = append(names, label)
	}
	return strings.Join(names, ", ")
}
