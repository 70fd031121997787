package bitext

import (
	"fmt"

	"github.com/sapt-mt/sapt/internal/kvstore"
)

// GlobalDomain is the reserved domain id selecting a side's
// whole-corpus index.
const GlobalDomain uint32 = 0xFFFFFFFF

// vocabNamespace returns the KV namespace for lang's vocabulary:
// "vocab.<lang>|vid_<id>" -> surface, "vocab.<lang>|srf_<surface>" -> id.
func vocabNamespace(store *kvstore.Store, lang string) *kvstore.Namespace {
	return store.Namespace("vocab." + lang + "|")
}

// scopeNamespace returns the KV namespace for one (lang, domain)
// token index: a root tag "R" for the global scope, "D<domain-id>"
// otherwise.
func scopeNamespace(store *kvstore.Store, lang string, domain uint32) *kvstore.Namespace {
	var tag string
	if domain == GlobalDomain {
		tag = "R"
	} else {
		tag = fmt.Sprintf("D%08x", domain)
	}
	return store.Namespace(lang + "|" + tag + "|")
}
