package log

import "log/slog"

func FlowID[T ~string](id T) slog.Attr {
	return slog.String("flow_id", string(id))
}

func FlowRunID[T ~string](id T) slog.Attr {
	return slog.String("flow_run_id", string(id))
}

func TaskRunID[T ~string](id T) slog.Attr {
	return slog.String("task_run_id", string(id))
}

func TaskName[T ~string](name T) slog.Attr {
	return slog.String("task_name", string(name))
}

func Status[T ~string](status T) slog.Attr {
	return slog.String("status", string(status))
}

func Error(err error) slog.Attr {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return slog.String("error", msg)
}

func ErrorString(msg string) slog.Attr {
	return slog.String("error", msg)
}
