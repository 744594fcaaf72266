package alarm

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	_ "algoedge.xyz/alarm-relay-service/pkg/testing"
)

func TestBuildMarkdown(t *testing.T) {
	ctrl, alarmObj, _ := GetTestAlarmWithMemorySqliteDialector(t, false)
	defer ctrl.Finish()
	alarmObj.Now = fixedClock()

	ev := testEvent(uuid.NewString())
	ev.BoxID = "box-42"
	ev.Score = "0.93"
	ev.Age = "30"
	ev.Gender = "male"

	title, text := alarmObj.BuildMarkdown(ev, "/static/snaps/20250610/abc.jpg")

	assert.Equal(t, "[alarm-relay-test] alarm: restricted area intrusion(11)", title)
	assert.Contains(t, text, "![snap](/static/snaps/20250610/abc.jpg)")
	assert.Contains(t, text, "- **time**: `2025-06-10 10:00:03`")
	assert.Contains(t, text, "gate camera / box-a (boxId=box-42)")
	assert.Contains(t, text, "- **score**: `0.93`")
	assert.Contains(t, text, "age=30, gender=male")
}

func TestBuildMarkdownWithoutImageOrAttrs(t *testing.T) {
	ctrl, alarmObj, _ := GetTestAlarmWithMemorySqliteDialector(t, false)
	defer ctrl.Finish()
	alarmObj.Now = fixedClock()

	ev := &Event{DeviceID: uuid.NewString()}
	_, text := alarmObj.BuildMarkdown(ev, "")

	assert.NotContains(t, text, "![snap]")
	assert.NotContains(t, text, "**score**")
	assert.NotContains(t, text, "**attr**")
	assert.Contains(t, text, "- / - (boxId=-)")
}
