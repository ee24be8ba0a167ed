package dom

// MutationRecord describes one child list change.
type MutationRecord struct {
	Target       *Node
	AddedNodes   []*Node
	RemovedNodes []*Node
}

// ObserveOptions selects which mutations an observer receives.
type ObserveOptions struct {
	ChildList bool
	Subtree   bool
	// Composed extends a subtree observation into shadow trees attached
	// below the observed root.
	Composed bool
}

// MutationCallback receives a batch of records at a microtask checkpoint.
type MutationCallback func(records []MutationRecord, observer *MutationObserver)

type observation struct {
	root *Node
	opts ObserveOptions
}

// MutationObserver batches child list mutations and delivers them at the next
// microtask checkpoint of the document's loop.
type MutationObserver struct {
	doc          *Document
	callback     MutationCallback
	observations []observation
	queue        []MutationRecord
	scheduled    bool
}

// NewMutationObserver creates an observer that is not yet observing anything.
func (d *Document) NewMutationObserver(cb MutationCallback) *MutationObserver {
	return &MutationObserver{doc: d, callback: cb}
}

// Observe starts (or updates) observation of root.
func (o *MutationObserver) Observe(root *Node, opts ObserveOptions) {
	for i, obs := range o.observations {
		if obs.root == root {
			o.observations[i].opts = opts
			return
		}
	}
	if len(o.observations) == 0 {
		o.doc.observers = append(o.doc.observers, o)
	}
	o.observations = append(o.observations, observation{root: root, opts: opts})
}

// Disconnect stops all observation and drops undelivered records.
func (o *MutationObserver) Disconnect() {
	o.observations = nil
	o.queue = nil
	for i, obs := range o.doc.observers {
		if obs == o {
			o.doc.observers = append(o.doc.observers[:i], o.doc.observers[i+1:]...)
			break
		}
	}
}

// TakeRecords returns and clears the undelivered records.
func (o *MutationObserver) TakeRecords() []MutationRecord {
	records := o.queue
	o.queue = nil
	return records
}

func (o *MutationObserver) interested(target *Node) bool {
	for _, obs := range o.observations {
		if !obs.opts.ChildList {
			continue
		}
		if obs.root == target {
			return true
		}
		if !obs.opts.Subtree {
			continue
		}
		if obs.opts.Composed {
			if obs.root.containsComposed(target) {
				return true
			}
		} else if obs.root.Contains(target) {
			return true
		}
	}
	return false
}

func (o *MutationObserver) deliver() {
	o.scheduled = false
	records := o.TakeRecords()
	if len(records) == 0 || o.callback == nil {
		return
	}
	o.callback(records, o)
}

func (d *Document) queueMutation(target *Node, added, removed []*Node) {
	if len(added) == 0 && len(removed) == 0 {
		return
	}
	for _, o := range d.observers {
		if !o.interested(target) {
			continue
		}
		o.queue = append(o.queue, MutationRecord{
			Target:       target,
			AddedNodes:   append([]*Node(nil), added...),
			RemovedNodes: append([]*Node(nil), removed...),
		})
		if !o.scheduled {
			o.scheduled = true
			d.loop.QueueMicrotask(o.deliver)
		}
	}
}
