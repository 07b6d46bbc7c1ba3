package record

// ApplyEdit applies one user correction to r. It returns true when the
// display projection must be regenerated. Errors from SetField are returned
// unchanged so the caller can surface them.
func ApplyEdit(r *Record, field, value string) (bool, error) {
	if err := r.SetField(field, value); err != nil {
		return false, err
	}
	return true, nil
}
