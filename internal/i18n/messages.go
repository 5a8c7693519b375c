package i18n

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// CLI message keys. The English text doubles as the key.
const (
	MsgRuleCreated  = "Rule %q created\n"
	MsgRuleDeleted  = "Rule %q deleted (%d removed)\n"
	MsgRulePresent  = "Rule %q is present\n"
	MsgRuleAbsent   = "Rule %q is absent\n"
	MsgApplySummary = "Applied %d rule(s), %d failed\n"
	MsgConfigValid  = "Configuration valid: %d rule(s)\n"
	MsgNoChanges    = "No changes\n"
)

func init() {
	de := language.German
	for key, msg := range map[string]string{
		MsgRuleCreated:  "Regel %q angelegt\n",
		MsgRuleDeleted:  "Regel %q gelöscht (%d entfernt)\n",
		MsgRulePresent:  "Regel %q ist vorhanden\n",
		MsgRuleAbsent:   "Regel %q ist nicht vorhanden\n",
		MsgApplySummary: "%d Regel(n) angewendet, %d fehlgeschlagen\n",
		MsgConfigValid:  "Konfiguration gültig: %d Regel(n)\n",
		MsgNoChanges:    "Keine Änderungen\n",
	} {
		_ = message.SetString(de, key, msg)
	}
}
