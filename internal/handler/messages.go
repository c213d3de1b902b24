package handler

// User-facing message templates. The engine never renders text; only the
// handlers do, right before a gateway call.
const (
	msgProfileWarning = "⚠️ Hi %s, please complete your %s to comply with the group rules.\n" +
		"You will be restricted after %d messages.\n\n" +
		"📖 <a href=\"%s\">Read the group rules</a>"

	msgProfileWarningNoEnforce = "⚠️ Hi %s, please complete your %s to comply with the group rules.\n\n" +
		"📖 <a href=\"%s\">Read the group rules</a>"

	msgProfileRestricted = "🚫 %s has been restricted after %d messages.\n" +
		"Please complete your %s to comply with the group rules.\n\n" +
		"📖 <a href=\"%s\">Read the group rules</a>\n" +
		"✉️ <a href=\"%s\">Message the bot directly to lift the restriction once your profile is complete</a>"

	msgTimeRestricted = "🚫 %s has been restricted after exceeding the time limit for completing their profile.\n\n" +
		"📖 <a href=\"%s\">Read the group rules</a>\n" +
		"✉️ <a href=\"%s\">Message the bot directly to lift the restriction once your profile is complete</a>"

	msgCaptchaChallenge = "👋 Welcome %s!\n" +
		"To prove you are human, solve this within %d seconds:\n\n" +
		"<b>%d %s %d = ?</b>"

	msgCaptchaVerified = "✅ %s verified successfully. Welcome to the group!"

	msgCaptchaExpired = "⛔ %s did not complete verification in time and remains restricted.\n" +
		"An administrator can lift the restriction."

	msgCaptchaWrongAnswer = "❌ Wrong answer, please try again."

	msgCaptchaNotYours = "This challenge is not for you."

	msgProbationWarning = "⚠️ %s, new members cannot send links or forwarded messages during the first %s.\n\n" +
		"📖 <a href=\"%s\">Read the group rules</a>"

	msgProbationRestricted = "⛔ %s has been restricted after %d violations of the new-member rules.\n\n" +
		"📖 <a href=\"%s\">Read the group rules</a>"

	msgDMNotInGroup = "❌ You are not a member of the group.\nPlease join the group first."

	msgDMPendingCaptcha = "⏳ You have a pending verification.\n" +
		"Please go to the group and answer the verification challenge."

	msgDMIncompleteProfile = "❌ You do not meet the requirements yet.\n\n" +
		"Please complete your %s first, then message this bot again.\n\n" +
		"📖 <a href=\"%s\">Read the group rules</a>"

	msgDMNoRestriction = "ℹ️ You have no restriction from this bot.\n" +
		"If an administrator restricted you, please contact the group admins directly."

	msgDMAlreadyUnrestricted = "ℹ️ You are no longer restricted in the group.\nWelcome back!"

	msgDMUnrestricted = "✅ Congratulations! You now meet the requirements.\n" +
		"Your restriction has been lifted. Welcome back!"

	msgDMUnrestrictNotice = "✅ %s completed their profile and was unrestricted via direct message."

	msgCheckReport = "📋 User: %s (ID: <code>%d</code>)\n\n" +
		"Profile status:\n" +
		"• Profile photo: %s\n" +
		"• Username: %s\n\n" +
		"%s"

	msgCheckComplete = "✅ Profile is complete, no action needed."

	msgCheckIncomplete = "⚠️ Profile is incomplete. Choose an action:"

	msgCheckForwardFailed = "❌ Could not extract the user from the forwarded message.\n" +
		"The user may hide their forward identity in their privacy settings."

	msgAdminWarnSent = "✅ Warning sent to %s in the group."

	msgUnbanButton = "Lift restriction"

	msgUserUnbanned = "✅ %s has been unrestricted by an administrator."

	msgNoPermission = "You don't have permission to do that."
)
