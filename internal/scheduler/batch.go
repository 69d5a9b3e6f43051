package scheduler

import (
	"github.com/meilidex/searchcore/internal/observability"
	"github.com/meilidex/searchcore/internal/tasks"
)

// variantLabel names a Variant for the batches-assembled-by-kind
// counter.
func variantLabel(v tasks.Variant) string {
	switch v {
	case tasks.VariantDocumentAddition:
		return "document_addition"
	case tasks.VariantDocumentsUpdate:
		return "documents_update"
	default:
		return "other"
	}
}

// makeBatch runs the coalescing policy against q's head list and
// returns the ids selected into the batch. It never pulls from more
// than one index: the head list's Peek fixes the index for the whole
// call, since HeadMut only ever exposes one list to f.
//
// The pre-condition is an empty incoming processing list; callers must
// ensure Ensure processing is empty before calling this.
func makeBatch(q *tasks.Queue, cfg Config) []tasks.ID {
	var processing []tasks.ID
	var docCount int
	var kind tasks.Type

	q.HeadMut(func(l *tasks.List) {
		head, ok := l.Peek()
		if !ok {
			return
		}

		if head.Kind.Variant == tasks.VariantOther {
			kind = head.Kind
			p, _ := l.Pop()
			processing = append(processing, p.ID)
			observability.QueueDepth.WithLabelValues(l.Index).Dec()
			return
		}

		kind = head.Kind
		for {
			head, ok := l.Peek()
			if !ok || !head.Kind.SameVariant(kind) {
				break
			}

			// Step 1: stop before exceeding max_batch_size.
			if len(processing) >= cfg.maxBatchSize() {
				break
			}

			// Step 2: pop, then step 3 accumulate document count.
			p, _ := l.Pop()
			processing = append(processing, p.ID)
			observability.QueueDepth.WithLabelValues(l.Index).Dec()
			docCount += p.Kind.Number

			// Step 4: the bound check happens after the push, so a
			// single oversized task is still admitted alone.
			if cfg.MaxDocumentsPerBatch > 0 && docCount >= cfg.MaxDocumentsPerBatch {
				break
			}
		}
	})

	if len(processing) > 0 {
		observability.BatchSize.Observe(float64(len(processing)))
		if docCount > 0 {
			observability.BatchDocuments.Observe(float64(docCount))
		}
		observability.BatchesTotal.WithLabelValues(variantLabel(kind.Variant)).Inc()
	}

	return processing
}
