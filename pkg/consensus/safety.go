package consensus

// PipelineSafeBlockQC binds a Happy proposal in view v to a QC justifying
// v-1, and rejects a stale proposal: the block's view must not be behind
// the validator's current view.
func PipelineSafeBlockQC(b Block, qc *QC, currentView View) bool {
	if qc == nil {
		return false
	}
	return b.View >= currentView && b.View == qc.Vote.View+1
}

// PipelineSafeBlockAggQC forbids a recovering (Sad) leader from forking
// away from the highest certified branch visible at recovery time: the
// proposed block must chain from that high QC's blockhash.
func PipelineSafeBlockAggQC(b Block, agg *AggQC, currentView View) bool {
	high := agg.FindHighQC()
	if high == nil {
		return false
	}
	return b.View >= currentView && b.LastBlockhash == high.Vote.Blockhash
}
