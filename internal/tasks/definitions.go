package tasks

// DefineTasks registers all available tasks
func DefineTasks(r *Registry, orders OrderLister, processor PaymentReprocessor) {
	reconcile := &ReconcilePendingTaskDef{Orders: orders, Processor: processor}
	r.Register(reconcile.TaskID(), reconcile.HandleExecution)
}
