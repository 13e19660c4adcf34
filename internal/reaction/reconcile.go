package reaction

type key struct {
	sender   string
	isFromMe bool
	typ      Type
}

// Reconciler folds reaction events, in chronological order, into the set of
// reactions that are currently live on a single message.
type Reconciler struct {
	list  []Reaction
	index map[key]int
}

// NewReconciler returns an empty Reconciler.
func NewReconciler() *Reconciler {
	return &Reconciler{index: make(map[key]int)}
}

// Apply processes one event. Events must be applied in ascending date order.
func (r *Reconciler) Apply(ev Event) {
	if ev.IsAdd {
		r.add(ev)
		return
	}
	r.remove(ev)
}

func (r *Reconciler) add(ev Event) {
	if ev.Type == nil {
		return
	}
	k := key{sender: ev.Sender, isFromMe: ev.IsFromMe, typ: *ev.Type}
	entry := Reaction{
		RowID:               ev.RowID,
		Type:                *ev.Type,
		Sender:              ev.Sender,
		IsFromMe:            ev.IsFromMe,
		Date:                ev.Date,
		AssociatedMessageID: ev.AssociatedMessageID,
	}
	if i, ok := r.index[k]; ok {
		r.list[i] = entry
		return
	}
	r.index[k] = len(r.list)
	r.list = append(r.list, entry)
}

func (r *Reconciler) remove(ev Event) {
	if ev.Type != nil {
		k := key{sender: ev.Sender, isFromMe: ev.IsFromMe, typ: *ev.Type}
		if i, ok := r.index[k]; ok {
			r.deleteAt(i)
			return
		}
	}
	if ev.Code != CodeCustomRemove {
		return
	}
	// The emoji in a removal's text is not always recoverable, so a custom
	// removal without an exact match clears any custom reaction by the sender.
	for i, existing := range r.list {
		if existing.Type.Kind == KindCustom && existing.Sender == ev.Sender && existing.IsFromMe == ev.IsFromMe {
			r.deleteAt(i)
			return
		}
	}
}

func (r *Reconciler) deleteAt(i int) {
	r.list = append(r.list[:i], r.list[i+1:]...)
	r.index = make(map[key]int, len(r.list))
	for j, e := range r.list {
		r.index[key{sender: e.Sender, isFromMe: e.IsFromMe, typ: e.Type}] = j
	}
}

// Reactions returns the live reactions in first-added order.
func (r *Reconciler) Reactions() []Reaction {
	out := make([]Reaction, len(r.list))
	copy(out, r.list)
	return out
}

// Reconcile is a convenience wrapper that applies events in order.
func Reconcile(events []Event) []Reaction {
	r := NewReconciler()
	for _, ev := range events {
		r.Apply(ev)
	}
	return r.Reactions()
}
