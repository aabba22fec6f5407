package moderation

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/whisper/moderation/internal/entity"
)

func TestCreateContentModerationRequest(t *testing.T) {
	f := newFixture()

	handle, err := f.svc.CreateContentModerationRequest(context.Background(), "app", entity.ContentTopic, "t1", "u1")
	require.NoError(t, err)
	assert.Equal(t, "h1", handle)
	require.Len(t, f.queue.content, 1)

	job := f.queue.content[0]
	assert.Equal(t, "h1", job.Handle)
	assert.Equal(t, entity.ContentTopic, job.ContentType)
	assert.Equal(t, "https://mod.example.com/v1/callbacks/moderation/h1?token="+testSigner.Sign("h1"), job.CallbackAddress)
	assert.True(t, f.svc.VerifyCallback("h1", testSigner.Sign("h1")))
}

func TestVerifyCallback(t *testing.T) {
	f := newFixture()
	token := testSigner.Sign("h1")

	assert.True(t, f.svc.VerifyCallback("h1", token))
	assert.False(t, f.svc.VerifyCallback("h2", token))
	assert.False(t, f.svc.VerifyCallback("h1", ""))
	assert.False(t, f.svc.VerifyCallback("h1", token[:len(token)-1]))

	other, err := NewCallbackSigner("other-secret")
	require.NoError(t, err)
	assert.False(t, f.svc.VerifyCallback("h1", other.Sign("h1")))

	unsigned := NewService(Config{CallbackBaseURL: "https://mod.example.com"}, Deps{Stores: newMemStores().stores(), Logger: zap.NewNop()})
	assert.False(t, unsigned.VerifyCallback("h1", token))

	_, err = NewCallbackSigner("")
	assert.ErrorIs(t, err, ErrNoCallbackSecret)
}

func TestCreateModerationRequest_ContractViolations(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.svc.CreateContentModerationRequest(ctx, "", entity.ContentTopic, "t1", "u1")
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = f.svc.CreateContentModerationRequest(ctx, "app", entity.ContentType("video"), "t1", "u1")
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = f.svc.CreateImageModerationRequest(ctx, "app", "img1", "", "u1")
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = f.svc.CreateUserModerationRequest(ctx, "app", "  ")
	assert.ErrorIs(t, err, ErrInvalidArgument)

	assert.Empty(t, f.queue.content)
	assert.Empty(t, f.queue.images)
	assert.Empty(t, f.queue.users)
}

func TestCreateModerationRequest_QueueFailure(t *testing.T) {
	f := newFixture()
	f.queue.failWith = errors.New("nats down")

	_, err := f.svc.CreateContentModerationRequest(context.Background(), "app", entity.ContentReply, "r1", "u1")
	assert.EqualError(t, err, "nats down")
}

func TestHandleContentJob_SubmitsAndTracks(t *testing.T) {
	f := newFixture()
	f.mem.topics["t1"] = entity.Topic{
		Handle: "t1", AppHandle: "app", Title: "Title", Text: "Body",
		BlobKind: entity.BlobKindImage, BlobHandle: "img1",
	}
	f.mem.images["img1"] = entity.Image{Handle: "img1", Size: 2048, Width: 300, Height: 300}
	ctx := context.Background()

	handle, err := f.svc.CreateContentModerationRequest(ctx, "app", entity.ContentTopic, "t1", "u1")
	require.NoError(t, err)
	f.svc.HandleContentJob(ctx, f.queue.content[0])

	subs := f.proactive.submissions()
	require.Len(t, subs, 1)
	assert.Equal(t, []string{"Title", "Body"}, subs[0].Texts)
	assert.Equal(t, "img1", subs[0].ImageHandle)
	assert.Equal(t, "https://cdn.example.com/img1", subs[0].ImageURL)
	assert.Equal(t, entity.KindContentText, subs[0].Kind)

	tx := f.tracker.txs[handle]
	assert.Equal(t, "async", tx.Provider)
	assert.Equal(t, "job-1", tx.ProviderJobID)
	assert.Nil(t, tx.RespondedAt)
	assert.NotEmpty(t, tx.RequestPayload)

	rec := f.tracker.records[handle]
	assert.Equal(t, entity.ContentTopic, rec.ContentType)
	assert.Equal(t, "t1", rec.ContentHandle)
	assert.Equal(t, "img1", rec.ImageHandle)
	assert.Equal(t, entity.RecordPending, rec.Status)
}

func TestHandleJobs_AbandonWithoutSubmitting(t *testing.T) {
	f := newFixture()
	f.mem.topics["banned"] = entity.Topic{Handle: "banned", Title: "x", ReviewStatus: entity.StatusBanned}
	f.mem.replies["blank"] = entity.Reply{Handle: "blank", Text: "   "}
	ctx := context.Background()

	f.svc.HandleContentJob(ctx, &ContentJob{Handle: "m1", AppHandle: "app", ContentType: entity.ContentTopic, ContentHandle: "banned"})
	f.svc.HandleContentJob(ctx, &ContentJob{Handle: "m2", AppHandle: "app", ContentType: entity.ContentTopic, ContentHandle: "deleted"})
	f.svc.HandleContentJob(ctx, &ContentJob{Handle: "m3", AppHandle: "app", ContentType: entity.ContentReply, ContentHandle: "blank"})
	f.svc.HandleContentJob(ctx, &ContentJob{Handle: "m4", AppHandle: "app", ContentType: entity.ContentUnknown, ContentHandle: "x"})
	f.svc.HandleUserJob(ctx, &UserJob{Handle: "m5", AppHandle: "app", UserHandle: "nobody"})

	assert.Empty(t, f.proactive.submissions())
	assert.Empty(t, f.tracker.txs)
}

func TestHandleJobs_ProviderFailureIsAbsorbed(t *testing.T) {
	f := newFixture()
	f.proactive.err = errors.New("503")
	f.mem.replies["r1"] = entity.Reply{Handle: "r1", Text: "hello"}

	f.svc.HandleContentJob(context.Background(), &ContentJob{Handle: "m1", AppHandle: "app", ContentType: entity.ContentReply, ContentHandle: "r1"})
	assert.Empty(t, f.tracker.txs)
}

func TestHandleImageJob_SynchronousVerdict(t *testing.T) {
	f := newFixture()
	f.proactive.response = verdictJSON(entity.StatusBanned)
	f.proactive.final = true
	f.mem.images["img1"] = entity.Image{Handle: "img1", AppHandle: "app", OwnerHandle: "u1", Size: 1000, Width: 100, Height: 100}
	f.mem.bytes["img1"] = []byte("jpeg")

	f.svc.HandleImageJob(context.Background(), &ImageJob{
		Handle: "m1", AppHandle: "app", ImageHandle: "img1", ImageKind: entity.ImageKindAppIcon, UserHandle: "u1",
	})

	assert.Equal(t, entity.StatusBanned, f.mem.images["img1"].ReviewStatus)
	assert.Equal(t, []string{"img1"}, f.mem.deleted)
	assert.Equal(t, entity.RecordCompleted, f.tracker.recordStatus("m1"))
	assert.Equal(t, entity.KindContentImage, f.tracker.txs["m1"].Kind)
}

func TestCreateContentReport_Threshold(t *testing.T) {
	tests := []struct {
		name      string
		config    *entity.ValidationConfig
		wantQueue []int
	}{
		{"threshold three", &entity.ValidationConfig{ContentReportThreshold: 3}, []int{3, 6, 9}},
		{"threshold zero", &entity.ValidationConfig{}, []int{1, 2, 3, 4, 5, 6, 7, 8, 9}},
		{"no config", nil, []int{1, 2, 3, 4, 5, 6, 7, 8, 9}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			if tt.config != nil {
				f.mem.configs["app"] = *tt.config
			}
			ctx := context.Background()

			var queuedAt []int
			for i := 1; i <= 9; i++ {
				entry, err := f.svc.CreateContentReport(ctx, ContentReport{
					AppHandle:          "app",
					ContentType:        entity.ContentComment,
					ContentHandle:      "c1",
					ReportedUserHandle: "u1",
					ReporterHandle:     fmt.Sprintf("reporter-%d", i),
					Reason:             entity.ReasonSpam,
				})
				require.NoError(t, err)
				n := len(f.queue.reports)
				if n > 0 && f.queue.reports[n-1].ReportHandle == entry.ReportHandle {
					queuedAt = append(queuedAt, i)
				}
			}
			assert.Equal(t, tt.wantQueue, queuedAt)
		})
	}
}

func TestCreateUserReport_UsesUserThreshold(t *testing.T) {
	f := newFixture()
	f.mem.configs["app"] = entity.ValidationConfig{ContentReportThreshold: 1, UserReportThreshold: 2}
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, err := f.svc.CreateUserReport(ctx, UserReport{
			AppHandle: "app", ReportedUserHandle: "u1", ReporterHandle: "r1", Reason: entity.ReasonHarassment,
		})
		require.NoError(t, err)
	}
	require.Len(t, f.queue.reports, 2)
	// h2 is the second report; h3 is the review handle minted on admission.
	assert.Equal(t, "h3", f.queue.reports[0].Handle)
	assert.Equal(t, "h2", f.queue.reports[0].ReportHandle)
	assert.Equal(t, "https://mod.example.com/v1/callbacks/reports/h3?token="+testSigner.Sign("h3"), f.queue.reports[0].CallbackAddress)

	second := f.reports.entries["h2"]
	assert.True(t, second.ReporterHasPriorComplaint)
	assert.False(t, f.reports.entries["h1"].ReporterHasPriorComplaint)
}

func TestCreateReport_Rejections(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.svc.CreateContentReport(ctx, ContentReport{
		AppHandle: "app", ContentType: entity.ContentTopic, ContentHandle: "t1",
		ReportedUserHandle: "u1", ReporterHandle: "r1", Reason: "boring",
	})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = f.svc.CreateUserReport(ctx, UserReport{AppHandle: "app", ReporterHandle: "r1", Reason: entity.ReasonSpam})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	f.svc.throttle = denyAll{}
	_, err = f.svc.CreateUserReport(ctx, UserReport{
		AppHandle: "app", ReportedUserHandle: "u1", ReporterHandle: "r1", Reason: entity.ReasonSpam,
	})
	assert.ErrorIs(t, err, ErrRateLimited)

	assert.Empty(t, f.reports.entries)
	assert.Empty(t, f.queue.reports)
}

func TestHandleReportJob_SubmitsOnce(t *testing.T) {
	f := newFixture()
	f.mem.topics["t1"] = entity.Topic{Handle: "t1", AppHandle: "app", Title: "a", Text: "b"}
	ctx := context.Background()

	_, err := f.svc.CreateContentReport(ctx, ContentReport{
		AppHandle: "app", ContentType: entity.ContentTopic, ContentHandle: "t1",
		ReportedUserHandle: "u1", ReporterHandle: "r1", Reason: entity.ReasonOffensive,
	})
	require.NoError(t, err)
	require.Len(t, f.queue.reports, 1)
	job := f.queue.reports[0]

	assert.NotEqual(t, job.ReportHandle, job.Handle)

	f.svc.HandleReportJob(ctx, job)
	f.svc.HandleReportJob(ctx, job)

	subs := f.reactive.submissions()
	require.Len(t, subs, 1)
	assert.Equal(t, entity.ReasonOffensive, subs[0].Reason)
	assert.Equal(t, []string{"a", "b"}, subs[0].Texts)
	assert.False(t, subs[0].ReportedAt.IsZero())

	assert.NotContains(t, f.tracker.txs, job.ReportHandle)
	tx := f.tracker.txs[job.Handle]
	assert.Equal(t, "review", tx.Provider)
	assert.NotNil(t, tx.RespondedAt, "synchronous response is recorded at submission")
	assert.Equal(t, entity.RecordPending, f.tracker.recordStatus(job.Handle))

	// The later callback overwrites the synchronous response.
	require.NoError(t, f.svc.ProcessReportResult(ctx, job.Handle, verdictJSON(entity.StatusClean)))
	assert.Equal(t, entity.StatusClean, f.mem.topics["t1"].ReviewStatus)
	assert.Equal(t, entity.RecordCompleted, f.tracker.recordStatus(job.Handle))
}

func TestReportHandleCannotDriveVerdict(t *testing.T) {
	f := newFixture()
	f.mem.topics["t1"] = entity.Topic{Handle: "t1", AppHandle: "app", Title: "a", Text: "b"}
	ctx := context.Background()

	entry, err := f.svc.CreateContentReport(ctx, ContentReport{
		AppHandle: "app", ContentType: entity.ContentTopic, ContentHandle: "t1",
		ReportedUserHandle: "u1", ReporterHandle: "r1", Reason: entity.ReasonOffensive,
	})
	require.NoError(t, err)
	f.svc.HandleReportJob(ctx, f.queue.reports[0])

	// The reporter only ever sees its report handle.
	assert.False(t, f.svc.VerifyCallback(entry.ReportHandle, ""))
	err = f.svc.ProcessReportResult(ctx, entry.ReportHandle, verdictJSON(entity.StatusBanned))
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NotEqual(t, entity.StatusBanned, f.mem.topics["t1"].ReviewStatus)
	assert.Equal(t, entity.RecordPending, f.tracker.recordStatus(f.queue.reports[0].Handle))
}

func TestCreateContentReport_CountsPerContentType(t *testing.T) {
	f := newFixture()
	f.mem.configs["app"] = entity.ValidationConfig{ContentReportThreshold: 2}
	ctx := context.Background()

	report := func(ct entity.ContentType, reporter string) {
		_, err := f.svc.CreateContentReport(ctx, ContentReport{
			AppHandle: "app", ContentType: ct, ContentHandle: "x1",
			ReportedUserHandle: "u1", ReporterHandle: reporter, Reason: entity.ReasonSpam,
		})
		require.NoError(t, err)
	}
	report(entity.ContentComment, "r1")
	report(entity.ContentTopic, "r2")
	assert.Empty(t, f.queue.reports, "a comment report does not count toward a topic")

	report(entity.ContentTopic, "r3")
	assert.Len(t, f.queue.reports, 1)
}

func TestHandleReportJob_UserReport(t *testing.T) {
	f := newFixture()
	f.mem.profiles[profileKey("app", "u9")] = entity.UserProfile{
		AppHandle: "app", UserHandle: "u9", FirstName: "Eve", LastName: "X", Bio: "bio",
	}
	ctx := context.Background()

	_, err := f.svc.CreateUserReport(ctx, UserReport{
		AppHandle: "app", ReportedUserHandle: "u9", ReporterHandle: "r1", Reason: entity.ReasonSexual,
	})
	require.NoError(t, err)
	f.svc.HandleReportJob(ctx, f.queue.reports[0])

	subs := f.reactive.submissions()
	require.Len(t, subs, 1)
	assert.Equal(t, entity.KindUserProfile, subs[0].Kind)
	assert.Equal(t, []string{"Eve", "X", "bio"}, subs[0].Texts)

	rec := f.tracker.records[subs[0].Handle]
	assert.Equal(t, "u9", rec.UserHandle)
	assert.Equal(t, entity.ContentUnknown, rec.ContentType)
}

func TestHandleReportJob_MissingReport(t *testing.T) {
	f := newFixture()

	f.svc.HandleReportJob(context.Background(), &ReportJob{Handle: "h9", ReportHandle: "nope", AppHandle: "app"})
	assert.Empty(t, f.reactive.submissions())

	f.svc.HandleReportJob(context.Background(), &ReportJob{ReportHandle: "nope", AppHandle: "app"})
	assert.Empty(t, f.reactive.submissions())
}
