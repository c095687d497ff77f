package models

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// FieldErrors представляет ошибки валидации, привязанные к полям.
// Ключ — имя поля, значение — сообщение об ошибке.
type FieldErrors map[string]string

// Error реализует интерфейс error
func (e FieldErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	keys := make([]string, 0, len(e))
	for k := range e {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e[k])
	}
	return strings.Join(parts, "; ")
}

// ResolveDataType возвращает действующий тип: явный, если задан, иначе унаследованный
func ResolveDataType(explicit, inherited *DataType) *DataType {
	if explicit != nil {
		return explicit
	}
	return inherited
}

// CheckTypeConsistent проверяет согласованность явного типа с типом источника
// наследования. Если явный тип не задан, проверка проходит тривиально.
// subjectLabel и field используются для формирования сообщения об ошибке.
func CheckTypeConsistent(explicit, authority *DataType, subjectLabel, field string) (bool, FieldErrors) {
	if explicit == nil || authority == nil || explicit.ID == authority.ID {
		return true, nil
	}
	return false, FieldErrors{
		field: fmt.Sprintf("%s не является устройством типа %s", subjectLabel, explicit.Name),
	}
}

// CheckStartBeforeEnd проверяет, что конец развертывания позже начала
func CheckStartBeforeEnd(start time.Time, end *time.Time) (bool, FieldErrors) {
	if end == nil || end.After(start) {
		return true, nil
	}
	return false, FieldErrors{
		"deployment_end": fmt.Sprintf("время окончания %s должно быть позже времени начала %s",
			end.UTC().Format(time.RFC3339), start.UTC().Format(time.RFC3339)),
	}
}

// CheckRecordingInDeployment проверяет, что момент записи файла попадает
// в окно развертывания (границы включительные)
func CheckRecordingInDeployment(recordingDT time.Time, deployment *Deployment) (bool, FieldErrors) {
	startStr := deployment.DeploymentStart.UTC().Format("2006-01-02")
	endStr := "настоящее время"
	if deployment.DeploymentEnd != nil {
		endStr = deployment.DeploymentEnd.UTC().Format("2006-01-02")
	}
	rangeStr := fmt.Sprintf("%s — %s", startStr, endStr)

	dt := recordingDT.UTC()
	if dt.Before(deployment.DeploymentStart.UTC()) {
		return false, FieldErrors{
			"recording_dt": fmt.Sprintf("дата записи (%s) раньше начала развертывания (%s). Допустимый диапазон для %s: %s",
				dt.Format("2006-01-02"), startStr, deployment.DeploymentDeviceID, rangeStr),
		}
	}
	if deployment.DeploymentEnd != nil && dt.After(deployment.DeploymentEnd.UTC()) {
		return false, FieldErrors{
			"recording_dt": fmt.Sprintf("дата записи (%s) позже окончания развертывания (%s). Допустимый диапазон для %s: %s",
				dt.Format("2006-01-02"), endStr, deployment.DeploymentDeviceID, rangeStr),
		}
	}
	return true, nil
}
